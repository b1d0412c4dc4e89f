package ports

import (
	"context"
	"time"

	"PaperWatcher/internal/domain"
)

// KnownItemSource lists the reference library.
type KnownItemSource interface {
	Items(ctx context.Context) ([]domain.KnownItem, error)
}

// ItemStore persists the reference library locally.
type ItemStore interface {
	KnownItemSource
	UpsertItem(ctx context.Context, item domain.KnownItem, contentHash string) error
	RemoveItems(ctx context.Context, keys []string) error
	SetEmbedding(ctx context.Context, key string, vector []float32) error
	LastModifiedVersion(ctx context.Context) (int, bool, error)
	SetLastModifiedVersion(ctx context.Context, version int) error
}

// LibraryPage is one page of items returned by the library API.
type LibraryPage struct {
	Items   []domain.KnownItem
	Version int
}

// LibraryClient pulls the remote reference library (Zotero).
type LibraryClient interface {
	// FetchItems calls fn per page of items modified since sinceVersion (0 = everything).
	FetchItems(ctx context.Context, sinceVersion int, fn func(LibraryPage) error) error
	FetchDeleted(ctx context.Context, sinceVersion int) ([]string, error)
}

// CandidateSource pulls fresh candidate works from upstream providers.
type CandidateSource interface {
	FetchCandidates(ctx context.Context, since time.Time) ([]domain.CandidateWork, error)
}

// DeliveryHistory remembers which works were already pushed to the user.
type DeliveryHistory interface {
	AlreadyDelivered(ctx context.Context, ids []string) (map[string]bool, error)
	SaveDelivered(ctx context.Context, works []domain.RankedWork) error
}

// Notifier streams selected digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
