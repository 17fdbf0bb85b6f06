package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports a cache backend that cannot be reached. Callers
// treat it as a miss and fall through to durable storage; it never surfaces
// past a read or publish.
var ErrUnavailable = errors.New("cache: backend unavailable")

// Lists is keyed, ordered, byte-valued list storage with TTL. A stored list
// is distinguishable from an absent key even when empty, so "truly empty"
// does not force reloads.
type Lists interface {
	// GetList returns the stored list and whether the key is present.
	GetList(ctx context.Context, key string) (items [][]byte, ok bool, err error)

	// SetList replaces the list under key with the given items and TTL.
	SetList(ctx context.Context, key string, items [][]byte, ttl time.Duration) error

	// PushTrim atomically prepends item and trims the list to capacity from
	// the head, refreshing the TTL. Returns false without writing when the
	// key is absent; the caller establishes the list first.
	PushTrim(ctx context.Context, key string, item []byte, capacity int, ttl time.Duration) (pushed bool, err error)

	// DelList removes the list under key.
	DelList(ctx context.Context, key string) error
}

// Objects is keyed byte-valued object storage with TTL, used for serialized
// entity snapshots invalidated whole on mutation.
type Objects interface {
	GetObject(ctx context.Context, key string) (val []byte, ok bool, err error)
	SetObject(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DelObject(ctx context.Context, key string) error
}

// Backend is a cache backend offering both shapes.
type Backend interface {
	Lists
	Objects
}
