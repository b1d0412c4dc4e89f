package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
)

type fakeLibrary struct {
	pages        []ports.LibraryPage
	deleted      []string
	sinceItems   int
	sinceDeleted int
	deletedCalls int
}

func (f *fakeLibrary) FetchItems(_ context.Context, since int, fn func(ports.LibraryPage) error) error {
	f.sinceItems = since
	for _, p := range f.pages {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLibrary) FetchDeleted(_ context.Context, since int) ([]string, error) {
	f.deletedCalls++
	f.sinceDeleted = since
	return f.deleted, nil
}

type memoryItemStore struct {
	items      map[string]domain.KnownItem
	hashes     map[string]string
	version    int
	hasVersion bool
	failUpsert error
}

func newMemoryItemStore() *memoryItemStore {
	return &memoryItemStore{items: map[string]domain.KnownItem{}, hashes: map[string]string{}}
}

func (m *memoryItemStore) Items(context.Context) ([]domain.KnownItem, error) {
	out := make([]domain.KnownItem, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *memoryItemStore) UpsertItem(_ context.Context, item domain.KnownItem, hash string) error {
	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.items[item.Key] = item
	m.hashes[item.Key] = hash
	return nil
}

func (m *memoryItemStore) RemoveItems(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func (m *memoryItemStore) SetEmbedding(context.Context, string, []float32) error { return nil }

func (m *memoryItemStore) LastModifiedVersion(context.Context) (int, bool, error) {
	return m.version, m.hasVersion, nil
}

func (m *memoryItemStore) SetLastModifiedVersion(_ context.Context, v int) error {
	m.version, m.hasVersion = v, true
	return nil
}

func TestIngestFirstSync(t *testing.T) {
	t.Parallel()

	lib := &fakeLibrary{pages: []ports.LibraryPage{
		{Items: []domain.KnownItem{{Key: "A", Title: "One"}, {Key: "B", Title: "Two"}}, Version: 40},
		{Items: []domain.KnownItem{{Key: "C", Title: "Three"}}, Version: 41},
	}}
	store := newMemoryItemStore()

	stats, err := NewIngestor(lib, store, nil).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, IngestStats{Fetched: 3, Updated: 3, LastModifiedVersion: 41}, stats)
	assert.Zero(t, lib.sinceItems)
	assert.Zero(t, lib.deletedCalls)
	assert.Len(t, store.items, 3)
	assert.Equal(t, 41, store.version)
	assert.Equal(t, ContentHash(domain.KnownItem{Title: "Two"}), store.hashes["B"])
}

func TestIngestIncrementalRemovesDeleted(t *testing.T) {
	t.Parallel()

	store := newMemoryItemStore()
	store.items["OLD"] = domain.KnownItem{Key: "OLD"}
	store.version, store.hasVersion = 41, true

	lib := &fakeLibrary{
		pages:   []ports.LibraryPage{{Items: []domain.KnownItem{{Key: "D", Title: "Four"}}, Version: 45}},
		deleted: []string{"OLD"},
	}

	stats, err := NewIngestor(lib, store, nil).Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 41, lib.sinceItems)
	assert.Equal(t, 41, lib.sinceDeleted)
	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 45, store.version)
	assert.NotContains(t, store.items, "OLD")
	assert.Contains(t, store.items, "D")
}

func TestIngestFullIgnoresStoredVersion(t *testing.T) {
	t.Parallel()

	store := newMemoryItemStore()
	store.version, store.hasVersion = 41, true
	lib := &fakeLibrary{}

	stats, err := NewIngestor(lib, store, nil).Run(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, lib.sinceItems)
	assert.Zero(t, stats.Fetched)
	assert.Equal(t, 41, store.version)
}

func TestIngestStoreFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryItemStore()
	store.failUpsert = errors.New("disk full")
	lib := &fakeLibrary{pages: []ports.LibraryPage{{Items: []domain.KnownItem{{Key: "A"}}, Version: 2}}}

	_, err := NewIngestor(lib, store, nil).Run(context.Background(), false)
	require.ErrorIs(t, err, store.failUpsert)
	assert.False(t, store.hasVersion)
}

func TestContentHashTracksContent(t *testing.T) {
	t.Parallel()

	a := ContentHash(domain.KnownItem{Key: "A", Title: "Same"})
	b := ContentHash(domain.KnownItem{Key: "B", Title: "Same"})
	c := ContentHash(domain.KnownItem{Key: "A", Title: "Different"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
