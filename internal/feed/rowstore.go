package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RowStore is the relational backend on Postgres via pgx. The primary key
// (owner_id, post_id) guards against duplicate fan-out from retried batches:
// inserts use ON CONFLICT DO NOTHING, so a retry is an idempotent no-op.
type RowStore struct {
	pool *pgxpool.Pool
}

const rowSchema = `
CREATE TABLE IF NOT EXISTS feed_entries (
    owner_id      BIGINT NOT NULL,
    post_id       BIGINT NOT NULL,
    author_id     BIGINT NOT NULL,
    created_at_ms BIGINT NOT NULL,
    PRIMARY KEY (owner_id, post_id)
);
CREATE INDEX IF NOT EXISTS feed_entries_owner_created_idx
    ON feed_entries (owner_id, created_at_ms DESC, post_id DESC);
`

// NewRowStore connects to Postgres and ensures the schema.
func NewRowStore(ctx context.Context, dsn string) (*RowStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("feed: connect postgres: %w", err)
	}
	s := &RowStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewRowStoreFromPool wraps an existing pool (schema must already exist or
// EnsureSchema be called by the owner of the pool).
func NewRowStoreFromPool(pool *pgxpool.Pool) *RowStore {
	return &RowStore{pool: pool}
}

func (s *RowStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, rowSchema); err != nil {
		return fmt.Errorf("feed: ensure schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *RowStore) Close() {
	s.pool.Close()
}

const rowInsert = `
INSERT INTO feed_entries (owner_id, post_id, author_id, created_at_ms)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner_id, post_id) DO NOTHING`

// Create implements Store.
func (s *RowStore) Create(ctx context.Context, e Entry) (Entry, error) {
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = time.Now().UnixMilli()
	}
	if _, err := s.pool.Exec(ctx, rowInsert, e.OwnerID, e.PostID, e.AuthorID, e.CreatedAtMs); err != nil {
		return Entry{}, fmt.Errorf("feed: insert: %w", err)
	}
	return e, nil
}

// BatchCreate implements Store, pipelining one insert per entry.
func (s *RowStore) BatchCreate(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	now := time.Now().UnixMilli()
	out := make([]Entry, 0, len(entries))
	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.CreatedAtMs == 0 {
			e.CreatedAtMs = now
		}
		batch.Queue(rowInsert, e.OwnerID, e.PostID, e.AuthorID, e.CreatedAtMs)
		out = append(out, e)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range out {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("feed: batch insert: %w", err)
		}
	}
	return out, nil
}

// List implements Store.
func (s *RowStore) List(ctx context.Context, owner int64, bound Bound, limit int, reverse bool) ([]Entry, error) {
	q := `SELECT owner_id, post_id, author_id, created_at_ms FROM feed_entries WHERE owner_id = $1`
	args := []interface{}{owner}
	switch bound.Kind {
	case BoundOlder:
		q += ` AND created_at_ms < $2`
		args = append(args, bound.TsMs)
	case BoundNewer:
		q += ` AND created_at_ms > $2`
		args = append(args, bound.TsMs)
	}
	if reverse {
		q += ` ORDER BY created_at_ms DESC, post_id DESC`
	} else {
		q += ` ORDER BY created_at_ms ASC, post_id ASC`
	}
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("feed: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.OwnerID, &e.PostID, &e.AuthorID, &e.CreatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *RowStore) Count(ctx context.Context, owner int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feed_entries WHERE owner_id = $1`, owner).Scan(&n)
	return n, err
}

// CountAll implements Store.
func (s *RowStore) CountAll(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feed_entries`).Scan(&n)
	return n, err
}

// Delete implements Store.
func (s *RowStore) Delete(ctx context.Context, owner, postID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feed_entries WHERE owner_id = $1 AND post_id = $2`, owner, postID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
