package ranking

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
)

// JournalMetrics maps a normalized venue name to its quality figure (e.g. SJR).
type JournalMetrics map[string]float64

// Lookup finds the figure for a venue, ignoring case and extra whitespace.
func (j JournalMetrics) Lookup(venue string) (float64, bool) {
	key := normalizeVenue(venue)
	if key == "" || j == nil {
		return 0, false
	}
	v, ok := j[key]
	return v, ok
}

// LoadJournalMetrics reads a CSV with "title" and "sjr" columns. A missing file
// yields an empty table; malformed rows are skipped.
func LoadJournalMetrics(path string, logger *slog.Logger) (JournalMetrics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("journal metrics file not found", "path", path)
		return JournalMetrics{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal metrics: %w", err)
	}
	defer f.Close()

	metrics, skipped, err := parseJournalMetrics(f)
	if err != nil {
		logger.Warn("failed to load journal metrics", "path", path, "error", err)
		return JournalMetrics{}, nil
	}
	logger.Info("loaded journal metrics", "entries", len(metrics), "skipped_rows", skipped)
	return metrics, nil
}

func parseJournalMetrics(r io.Reader) (JournalMetrics, int, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, err
	}
	firstLine, _, _ := strings.Cut(string(head), "\n")

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return JournalMetrics{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	titleCol, sjrCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "title":
			titleCol = i
		case "sjr":
			sjrCol = i
		}
	}
	if titleCol < 0 || sjrCol < 0 {
		return nil, 0, errors.New("header must contain title and sjr columns")
	}

	metrics := JournalMetrics{}
	skipped := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if err != nil && !errors.As(err, &parseErr) {
			return nil, skipped, fmt.Errorf("read row: %w", err)
		}
		if err != nil || titleCol >= len(row) || sjrCol >= len(row) {
			skipped++
			continue
		}
		title := normalizeVenue(row[titleCol])
		raw := strings.ReplaceAll(strings.TrimSpace(row[sjrCol]), ",", ".")
		if title == "" || raw == "" {
			skipped++
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			skipped++
			continue
		}
		metrics[title] = value
	}
	return metrics, skipped, nil
}

func normalizeVenue(venue string) string {
	return strings.Join(strings.Fields(strings.ToLower(venue)), " ")
}
