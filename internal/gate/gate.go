package gate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
)

// FeedColumnStore switches the durable feed backend from the relational row
// store to the wide-column store. Read once per operation, so flips take
// effect without redeploy. Flipping mid-run does not migrate data: entries
// written under the old backend stay in that store and are no longer visible
// through the new backend's reads. Treat a flip as an operational migration
// step, not a routine toggle.
const FeedColumnStore = "feed_column_store"

// Gate answers runtime feature-flag queries. Implementations must not cache
// results; callers re-read per operation.
type Gate interface {
	IsOn(ctx context.Context, name string) bool
}

// Static is a fixed in-memory gate for tests and embedded runs. The zero
// value answers false for every flag.
type Static map[string]bool

// IsOn implements Gate.
func (s Static) IsOn(_ context.Context, name string) bool { return s[name] }

// record is the stored form of one flag.
type record struct {
	Name        string `json:"name"`
	On          bool   `json:"on"`
	UpdatedAtMs int64  `json:"updatedAtMs"`
}

var flagPrefix = []byte("gk/")

func flagKey(name string) []byte {
	k := make([]byte, 0, len(flagPrefix)+len(name))
	k = append(k, flagPrefix...)
	k = append(k, name...)
	return k
}

// Store is a pebble-backed gate. Flags default to off when absent or
// unreadable.
type Store struct {
	db *pebblestore.DB
}

// NewStore creates a Store on the given database.
func NewStore(db *pebblestore.DB) *Store { return &Store{db: db} }

// IsOn implements Gate.
func (s *Store) IsOn(_ context.Context, name string) bool {
	b, err := s.db.Get(flagKey(name))
	if err != nil {
		return false
	}
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return false
	}
	return r.On
}

// Set persists a flag value.
func (s *Store) Set(_ context.Context, name string, on bool) error {
	if name == "" {
		return errors.New("gate: flag name is required")
	}
	b, err := json.Marshal(record{Name: name, On: on, UpdatedAtMs: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return s.db.Set(flagKey(name), b)
}
