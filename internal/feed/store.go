package feed

import (
	"context"
	"errors"
)

// Entry links one post into one owner's feed. The owner is typically a
// follower of the author; the author also owns one entry for their own post.
// CreatedAtMs is assigned at publish time and never mutated; it is the sort
// key of the owner's sequence. IDs are positive.
type Entry struct {
	OwnerID     int64 `json:"ownerId"`
	PostID      int64 `json:"postId"`
	AuthorID    int64 `json:"authorId"`
	CreatedAtMs int64 `json:"createdAtMs"`
}

// ErrNotFound is returned when a requested entry does not exist.
var ErrNotFound = errors.New("feed: entry not found")

// BoundKind discriminates pagination bounds.
type BoundKind int

const (
	// BoundNone selects from the newest entry (first page).
	BoundNone BoundKind = iota
	// BoundOlder selects entries strictly older than the timestamp.
	BoundOlder
	// BoundNewer selects entries strictly newer than the timestamp.
	BoundNewer
)

// Bound expresses a strict timestamp boundary over an owner's sequence.
// Equal timestamps are excluded in both directions.
type Bound struct {
	Kind BoundKind
	TsMs int64
}

// NoBound selects from the newest entry.
func NoBound() Bound { return Bound{} }

// Older selects entries with CreatedAtMs < tsMs.
func Older(tsMs int64) Bound { return Bound{Kind: BoundOlder, TsMs: tsMs} }

// Newer selects entries with CreatedAtMs > tsMs.
func Newer(tsMs int64) Bound { return Bound{Kind: BoundNewer, TsMs: tsMs} }

// Store is the durable backend contract shared by both backends. Limit caps
// result size; limit <= 0 means no cap. Reverse orders by CreatedAtMs
// descending (newest first); ties order by PostID, matching insertion order
// for monotonically assigned post ids.
type Store interface {
	// Create writes a single entry. Rewriting an existing (owner, post)
	// linkage is an idempotent no-op from the read side.
	Create(ctx context.Context, e Entry) (Entry, error)

	// BatchCreate writes many entries in one round trip. Safe to retry: the
	// backend's uniqueness/overwrite guarantee absorbs duplicates.
	BatchCreate(ctx context.Context, entries []Entry) ([]Entry, error)

	// List returns the owner's entries within bound.
	List(ctx context.Context, owner int64, b Bound, limit int, reverse bool) ([]Entry, error)

	// Count returns the number of entries for the owner.
	Count(ctx context.Context, owner int64) (int, error)

	// CountAll returns the total entry count across owners.
	CountAll(ctx context.Context) (int, error)

	// Delete removes a single (owner, post) linkage. Administrative use only.
	Delete(ctx context.Context, owner, postID int64) error
}
