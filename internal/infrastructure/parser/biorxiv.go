package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/scanner"
)

const (
	biorxivBaseURL    = "https://api.biorxiv.org"
	defaultBiorxivMax = 500
)

// BiorxivScanner reads the bioRxiv/medRxiv details API. The server option selects which one.
type BiorxivScanner struct {
	api     apiClient
	baseURL string
	now     func() time.Time
	logger  *slog.Logger
}

var _ scanner.Scanner = (*BiorxivScanner)(nil)

// NewBiorxivScanner wires the shared HTTP client and rate limiter.
func NewBiorxivScanner(client *http.Client, limiter *rate.Limiter, logger *slog.Logger) *BiorxivScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BiorxivScanner{api: newAPIClient(client, limiter, ""), baseURL: biorxivBaseURL, now: time.Now, logger: logger}
}

// Name identifies the strategy inside the registry.
func (b *BiorxivScanner) Name() string {
	return "biorxiv"
}

type biorxivResponse struct {
	Messages []struct {
		Status string `json:"status"`
		Total  any    `json:"total"`
	} `json:"messages"`
	Collection []struct {
		DOI      string `json:"doi"`
		Title    string `json:"title"`
		Authors  string `json:"authors"`
		Date     string `json:"date"`
		Category string `json:"category"`
		Abstract string `json:"abstract"`
		Version  string `json:"version"`
	} `json:"collection"`
}

// Scan pages through preprints posted between req.Since and today.
func (b *BiorxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateWork, error) {
	server := strings.ToLower(optionOr(req.Options, "server", "biorxiv"))
	if server != "biorxiv" && server != "medrxiv" {
		return nil, fmt.Errorf("unsupported preprint server %q", server)
	}
	limit := defaultBiorxivMax
	if v, err := strconv.Atoi(req.Options["maxResults"]); err == nil && v > 0 {
		limit = v
	}

	from := req.Since.UTC().Format("2006-01-02")
	to := b.now().UTC().Format("2006-01-02")

	var works []domain.CandidateWork
	for cursor := 0; len(works) < limit; {
		endpoint := fmt.Sprintf("%s/details/%s/%s/%s/%d", strings.TrimSuffix(b.baseURL, "/"), server, from, to, cursor)

		var payload biorxivResponse
		if err := b.api.getJSON(ctx, endpoint, &payload); err != nil {
			return nil, fmt.Errorf("%s details: %w", server, err)
		}
		if len(payload.Collection) == 0 {
			break
		}

		for _, entry := range payload.Collection {
			title := strings.TrimSpace(entry.Title)
			if title == "" {
				continue
			}
			work := domain.CandidateWork{
				Source:     server,
				Identifier: firstNonEmpty(entry.DOI, title),
				Title:      title,
				Abstract:   strings.TrimSpace(entry.Abstract),
				DOI:        entry.DOI,
				Published:  parseDate(entry.Date),
				Venue:      server,
				Extra:      map[string]any{"category": entry.Category},
			}
			if entry.DOI != "" {
				work.URL = fmt.Sprintf("https://www.%s.org/content/%sv%s", server, entry.DOI, firstNonEmpty(entry.Version, "1"))
			}
			for _, author := range strings.Split(entry.Authors, ";") {
				if author = strings.TrimSpace(author); author != "" {
					work.Authors = append(work.Authors, author)
				}
			}
			works = append(works, work)
		}

		cursor += len(payload.Collection)
		if cursor >= totalOf(payload) {
			break
		}
	}

	if len(works) > limit {
		works = works[:limit]
	}
	b.logger.Debug("fetched preprints", "server", server, "count", len(works), "from", from, "to", to)
	return works, nil
}

// totalOf reads messages[0].total, which the API returns as a number or a string.
func totalOf(payload biorxivResponse) int {
	if len(payload.Messages) == 0 {
		return 0
	}
	switch v := payload.Messages[0].Total.(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}
