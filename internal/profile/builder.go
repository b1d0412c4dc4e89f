package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/index"
	"PaperWatcher/internal/vectorizer"
)

const topN = 20

var (
	// ErrNoItems means the library is empty; ingest before building a profile.
	ErrNoItems = errors.New("profile: no library items to build from")
	// ErrProfileMissing means no profile summary has been written yet.
	ErrProfileMissing = errors.New("profile: summary not found; run the profile command first")
)

// Store is what the builder needs from the known-item store.
type Store interface {
	Items(ctx context.Context) ([]domain.KnownItem, error)
	SetEmbedding(ctx context.Context, key string, vector []float32) error
}

// Artifacts names the files a build produced.
type Artifacts struct {
	IndexPath   string
	SummaryPath string
	ItemCount   int
}

// Builder turns the library into a profile index and summary.
type Builder struct {
	store       Store
	model       *vectorizer.Model
	indexPath   string
	summaryPath string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBuilder wires a builder around a loaded model.
func NewBuilder(store Store, model *vectorizer.Model, indexPath, summaryPath string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		store:       store,
		model:       model,
		indexPath:   indexPath,
		summaryPath: summaryPath,
		now:         time.Now,
		logger:      logger,
	}
}

// Run vectorizes every item, replaces the index and writes the summary.
func (b *Builder) Run(ctx context.Context) (Artifacts, error) {
	items, err := b.store.Items(ctx)
	if err != nil {
		return Artifacts{}, fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		return Artifacts{}, ErrNoItems
	}

	b.logger.Info("vectorizing library items", "count", len(items))
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content()
	}
	vectors, err := b.model.Encode(ctx, texts)
	if err != nil {
		return Artifacts{}, fmt.Errorf("encode items: %w", err)
	}

	for i, item := range items {
		if err := b.store.SetEmbedding(ctx, item.Key, vectors[i]); err != nil {
			return Artifacts{}, fmt.Errorf("store embedding %s: %w", item.Key, err)
		}
	}

	ix, err := index.Build(vectors)
	if err != nil {
		return Artifacts{}, fmt.Errorf("build index: %w", err)
	}
	if err := ix.Save(b.indexPath); err != nil {
		return Artifacts{}, fmt.Errorf("save index: %w", err)
	}
	b.logger.Info("saved profile index", "path", b.indexPath, "vectors", ix.Len(), "dim", ix.Dim())

	summary := Summarize(items, vectors, b.model.Name(), b.now().UTC())
	if err := WriteSummary(b.summaryPath, summary); err != nil {
		return Artifacts{}, err
	}
	b.logger.Info("wrote profile summary", "path", b.summaryPath)

	return Artifacts{IndexPath: b.indexPath, SummaryPath: b.summaryPath, ItemCount: len(items)}, nil
}

// Summarize computes the normalized centroid and the author/venue frequency tables.
func Summarize(items []domain.KnownItem, vectors [][]float32, model string, now time.Time) domain.ProfileSummary {
	authors := map[string]int{}
	venues := map[string]int{}
	for _, item := range items {
		for _, creator := range item.Creators {
			if creator != "" {
				authors[creator]++
			}
		}
		if item.Venue != "" {
			venues[item.Venue]++
		}
	}

	summary := domain.ProfileSummary{
		GeneratedAt: now,
		ItemCount:   len(items),
		Model:       model,
		Centroid:    centroid(vectors),
	}
	for _, kv := range mostCommon(authors, topN) {
		summary.TopAuthors = append(summary.TopAuthors, domain.AuthorCount{Author: kv.name, Count: kv.count})
	}
	for _, kv := range mostCommon(venues, topN) {
		summary.TopVenues = append(summary.TopVenues, domain.VenueCount{Venue: kv.name, Count: kv.count})
	}
	return summary
}

// WriteSummary stores the summary as indented JSON.
func WriteSummary(path string, summary domain.ProfileSummary) error {
	raw, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write profile summary: %w", err)
	}
	return nil
}

// LoadSummary reads a summary written by WriteSummary.
func LoadSummary(path string) (domain.ProfileSummary, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.ProfileSummary{}, ErrProfileMissing
	}
	if err != nil {
		return domain.ProfileSummary{}, fmt.Errorf("read profile summary: %w", err)
	}
	var summary domain.ProfileSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.ProfileSummary{}, fmt.Errorf("decode profile summary %s: %w", path, err)
	}
	return summary, nil
}

func centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float32, len(vectors[0]))
	for _, vec := range vectors {
		for i, x := range vec {
			sum[i] += x
		}
	}
	for i := range sum {
		sum[i] /= float32(len(vectors))
	}
	return vectorizer.Normalize(sum)
}

type nameCount struct {
	name  string
	count int
}

// mostCommon orders by count, then name, so output is deterministic.
func mostCommon(counts map[string]int, n int) []nameCount {
	out := make([]nameCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, nameCount{name: name, count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
