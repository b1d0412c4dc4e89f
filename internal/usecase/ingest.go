package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
)

// IngestStats reports what one library sync changed.
type IngestStats struct {
	Fetched             int
	Updated             int
	Removed             int
	LastModifiedVersion int
}

// Ingestor syncs the remote reference library into the local item store.
type Ingestor struct {
	client ports.LibraryClient
	store  ports.ItemStore
	logger *slog.Logger
}

// NewIngestor wires a library client with a store.
func NewIngestor(client ports.LibraryClient, store ports.ItemStore, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{client: client, store: store, logger: logger}
}

// Run pulls items changed since the last recorded library version (everything when full is set),
// upserts them, drops deleted keys and records the new version.
func (i *Ingestor) Run(ctx context.Context, full bool) (IngestStats, error) {
	var stats IngestStats

	since := 0
	if !full {
		version, ok, err := i.store.LastModifiedVersion(ctx)
		if err != nil {
			return stats, fmt.Errorf("read library version: %w", err)
		}
		if ok {
			since = version
		}
	}
	stats.LastModifiedVersion = since

	err := i.client.FetchItems(ctx, since, func(page ports.LibraryPage) error {
		for _, item := range page.Items {
			stats.Fetched++
			if err := i.store.UpsertItem(ctx, item, ContentHash(item)); err != nil {
				return fmt.Errorf("upsert item %s: %w", item.Key, err)
			}
			stats.Updated++
		}
		stats.LastModifiedVersion = max(stats.LastModifiedVersion, page.Version)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("fetch library items: %w", err)
	}

	if since > 0 {
		deleted, err := i.client.FetchDeleted(ctx, since)
		if err != nil {
			return stats, fmt.Errorf("fetch deleted items: %w", err)
		}
		if len(deleted) > 0 {
			if err := i.store.RemoveItems(ctx, deleted); err != nil {
				return stats, fmt.Errorf("remove deleted items: %w", err)
			}
			stats.Removed = len(deleted)
		}
	}

	if stats.LastModifiedVersion > since {
		if err := i.store.SetLastModifiedVersion(ctx, stats.LastModifiedVersion); err != nil {
			return stats, fmt.Errorf("record library version: %w", err)
		}
	}

	i.logger.Info("library synced",
		"fetched", stats.Fetched,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"version", stats.LastModifiedVersion,
	)
	return stats, nil
}

// ContentHash fingerprints the embedded text of an item.
func ContentHash(item domain.KnownItem) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(item.Content())))
	return hex.EncodeToString(sum[:])
}
