package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"PaperWatcher/internal/dedupe"
	"PaperWatcher/internal/domain"
	"PaperWatcher/internal/ports"
)

const historySchema = `CREATE TABLE IF NOT EXISTS delivered_works (
    external_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    title TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    label TEXT NOT NULL,
    delivered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresHistory persists delivered works into Postgres.
type PostgresHistory struct {
	db *sql.DB
}

var _ ports.DeliveryHistory = (*PostgresHistory)(nil)

// OpenPostgresHistory connects using dsn and ensures the table exists.
func OpenPostgresHistory(ctx context.Context, dsn string) (*PostgresHistory, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create delivered_works: %w", err)
	}
	return NewPostgresHistory(db), nil
}

// NewPostgresHistory wires a sql.DB implementation.
func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// Close releases the database handle.
func (r *PostgresHistory) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// AlreadyDelivered returns a map with IDs that already exist in storage.
func (r *PostgresHistory) AlreadyDelivered(ctx context.Context, ids []string) (map[string]bool, error) {
	if r.db == nil || len(ids) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := alreadyDeliveredQuery(ids)
	if err != nil {
		return nil, fmt.Errorf("build delivered query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query delivered: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan id: %w", err)
		}
		result[id] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveDelivered upserts a snapshot of every delivered work.
func (r *PostgresHistory) SaveDelivered(ctx context.Context, works []domain.RankedWork) error {
	if r.db == nil || len(works) == 0 {
		return nil
	}

	query, args, err := saveDeliveredQuery(works)
	if err != nil {
		return fmt.Errorf("build delivered upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert delivered: %w", err)
	}
	return nil
}

func alreadyDeliveredQuery(ids []string) (string, []any, error) {
	return psql.Select("external_id").
		From("delivered_works").
		Where("external_id = ANY(?)", pq.StringArray(ids)).
		ToSql()
}

func saveDeliveredQuery(works []domain.RankedWork) (string, []any, error) {
	insert := psql.Insert("delivered_works").Columns("external_id", "source", "title", "score", "label")
	seen := make(map[string]struct{}, len(works))
	for _, w := range works {
		key := dedupe.DeliveryKey(w.CandidateWork)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		insert = insert.Values(key, w.Source, w.Title, w.Score, string(w.Label))
	}
	return insert.Suffix(`ON CONFLICT (external_id) DO UPDATE
              SET title = EXCLUDED.title,
                  score = EXCLUDED.score,
                  label = EXCLUDED.label,
                  updated_at = NOW()`).
		ToSql()
}
