package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
)

const itemsSchema = `
CREATE TABLE IF NOT EXISTS items (
    key TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    title TEXT NOT NULL,
    abstract TEXT,
    creators TEXT,
    tags TEXT,
    venue TEXT,
    year INTEGER,
    doi TEXT,
    url TEXT,
    extra TEXT,
    content_hash TEXT,
    embedding BLOB,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_version ON items(version);
`

const lastModifiedVersionKey = "last_modified_version"

var itemColumns = []string{
	"key", "version", "title", "abstract", "creators", "tags", "venue", "year", "doi", "url", "extra", "embedding",
}

// SQLiteStore keeps the reference library in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ ports.ItemStore = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates if needed) the store at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range strings.Split(itemsSchema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertItem inserts or refreshes a library item. The stored embedding is kept.
func (s *SQLiteStore) UpsertItem(ctx context.Context, item domain.KnownItem, contentHash string) error {
	creators, err := json.Marshal(item.Creators)
	if err != nil {
		return fmt.Errorf("marshal creators: %w", err)
	}
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	extra, err := json.Marshal(item.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	query, args, err := sq.Insert("items").
		Columns("key", "version", "title", "abstract", "creators", "tags", "venue", "year", "doi", "url", "extra", "content_hash").
		Values(item.Key, item.Version, item.Title, item.Abstract, string(creators), string(tags),
			item.Venue, item.Year, item.DOI, item.URL, string(extra), contentHash).
		Suffix(`ON CONFLICT(key) DO UPDATE SET
                version=excluded.version,
                title=excluded.title,
                abstract=excluded.abstract,
                creators=excluded.creators,
                tags=excluded.tags,
                venue=excluded.venue,
                year=excluded.year,
                doi=excluded.doi,
                url=excluded.url,
                extra=excluded.extra,
                content_hash=excluded.content_hash,
                updated_at=CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert item %s: %w", item.Key, err)
	}
	return nil
}

// RemoveItems deletes items by key.
func (s *SQLiteStore) RemoveItems(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sq.Delete("items").Where(sq.Eq{"key": keys}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

// SetEmbedding stores the vector of an item.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, key string, vector []float32) error {
	query, args, err := sq.Update("items").
		Set("embedding", encodeVector(vector)).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build embedding update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set embedding %s: %w", key, err)
	}
	return nil
}

// Items lists every library item ordered by key.
func (s *SQLiteStore) Items(ctx context.Context) ([]domain.KnownItem, error) {
	query, args, err := sq.Select(itemColumns...).From("items").OrderBy("key").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.KnownItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// LastModifiedVersion returns the library version of the last sync, if any.
func (s *SQLiteStore) LastModifiedVersion(ctx context.Context) (int, bool, error) {
	query, args, err := sq.Select("value").From("metadata").Where(sq.Eq{"key": lastModifiedVersionKey}).ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build metadata select: %w", err)
	}
	var raw string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read last modified version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("parse last modified version %q: %w", raw, err)
	}
	return version, true, nil
}

// SetLastModifiedVersion records the library version reached by a sync.
func (s *SQLiteStore) SetLastModifiedVersion(ctx context.Context, version int) error {
	query, args, err := sq.Replace("metadata").
		Columns("key", "value").
		Values(lastModifiedVersionKey, strconv.Itoa(version)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build metadata replace: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set last modified version: %w", err)
	}
	return nil
}

func scanItem(rows *sql.Rows) (domain.KnownItem, error) {
	var (
		item                                 domain.KnownItem
		abstract, creators, tags, venue, doi sql.NullString
		url, extra                           sql.NullString
		year                                 sql.NullInt64
		embedding                            []byte
	)
	if err := rows.Scan(&item.Key, &item.Version, &item.Title, &abstract, &creators, &tags,
		&venue, &year, &doi, &url, &extra, &embedding); err != nil {
		return domain.KnownItem{}, fmt.Errorf("scan item: %w", err)
	}

	item.Abstract = abstract.String
	item.Venue = venue.String
	item.Year = int(year.Int64)
	item.DOI = doi.String
	item.URL = url.String
	item.Embedding = decodeVector(embedding)

	if err := unmarshalColumn(creators, &item.Creators); err != nil {
		return domain.KnownItem{}, fmt.Errorf("item %s creators: %w", item.Key, err)
	}
	if err := unmarshalColumn(tags, &item.Tags); err != nil {
		return domain.KnownItem{}, fmt.Errorf("item %s tags: %w", item.Key, err)
	}
	if err := unmarshalColumn(extra, &item.Extra); err != nil {
		return domain.KnownItem{}, fmt.Errorf("item %s extra: %w", item.Key, err)
	}
	return item, nil
}

func unmarshalColumn(col sql.NullString, v any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), v)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
