package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
)

// ColumnStore is the wide-column backend: one Pebble cell per entry, keyed
// (owner, created_at, post). Rewriting the same cell is a natural idempotent
// overwrite, which makes retried fan-out batches safe.
type ColumnStore struct {
	db    *pebblestore.DB
	codec ColumnCodec
}

// NewColumnStore creates a ColumnStore on the given database.
func NewColumnStore(db *pebblestore.DB) *ColumnStore {
	return &ColumnStore{db: db}
}

// Create implements Store.
func (s *ColumnStore) Create(ctx context.Context, e Entry) (Entry, error) {
	out, err := s.BatchCreate(ctx, []Entry{e})
	if err != nil {
		return Entry{}, err
	}
	return out[0], nil
}

// BatchCreate implements Store. All cells commit as one atomic batch.
func (s *ColumnStore) BatchCreate(ctx context.Context, entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	b := s.db.NewBatch()
	defer b.Close()

	out := make([]Entry, 0, len(entries))
	now := time.Now().UnixMilli()
	for _, e := range entries {
		if e.CreatedAtMs == 0 {
			e.CreatedAtMs = now
		}
		val, err := s.codec.Encode(e)
		if err != nil {
			return nil, err
		}
		if err := b.Set(keyEntry(e.OwnerID, e.CreatedAtMs, e.PostID), val, nil); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("feed: commit batch: %w", err)
	}
	return out, nil
}

// List implements Store. The bound translates to iterator range limits:
// Older(T) caps the range below key (owner, T, 0), Newer(T) starts it at
// (owner, T+1, 0), so equal timestamps are excluded in both directions.
func (s *ColumnStore) List(_ context.Context, owner int64, bound Bound, limit int, reverse bool) ([]Entry, error) {
	low := keyOwnerLow(owner)
	high := keyOwnerHigh(owner)
	switch bound.Kind {
	case BoundOlder:
		high = keyEntry(owner, bound.TsMs, 0)
	case BoundNewer:
		low = keyEntry(owner, bound.TsMs+1, 0)
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	step := iter.First
	if reverse {
		step = iter.Last
	}
	for ok := step(); ok; {
		e, err := s.codec.Decode(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
		if reverse {
			ok = iter.Prev()
		} else {
			ok = iter.Next()
		}
	}
	return out, nil
}

// Count implements Store.
func (s *ColumnStore) Count(_ context.Context, owner int64) (int, error) {
	return s.countRange(keyOwnerLow(owner), keyOwnerHigh(owner))
}

// CountAll implements Store.
func (s *ColumnStore) CountAll(_ context.Context) (int, error) {
	low := append([]byte(nil), entryPrefix...)
	return s.countRange(low, append(low[:len(low):len(low)], 0xFF))
}

func (s *ColumnStore) countRange(low, high []byte) (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}

// Delete implements Store. The cell's timestamp is not part of the request,
// so the owner's range is scanned for the post.
func (s *ColumnStore) Delete(ctx context.Context, owner, postID int64) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: keyOwnerLow(owner), UpperBound: keyOwnerHigh(owner)})
	if err != nil {
		return err
	}
	defer iter.Close()

	for ok := iter.First(); ok; ok = iter.Next() {
		e, err := s.codec.Decode(iter.Value())
		if err != nil {
			return err
		}
		if e.PostID == postID {
			key := append([]byte(nil), iter.Key()...)
			return s.db.Delete(key)
		}
	}
	return ErrNotFound
}
