package cache

import (
	"context"
	"time"

	logpkg "github.com/rzbill/feedline/pkg/log"
)

// Codec serializes one list element for a given durable-model family.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// Loader returns the most recent limit items from durable storage for the
// owner a key belongs to. Invoked only on cache miss or fallback.
type Loader[T any] func(ctx context.Context, limit int) ([]T, error)

// ListStore is a read-through, write-through, capacity-bounded list cache.
// Each owner key caches the newest capacity items; reads past that horizon
// are the caller's concern. Cache failures degrade to loader-only reads and
// never propagate.
type ListStore[T any] struct {
	lists    Lists
	codec    Codec[T]
	capacity int
	ttl      time.Duration
	logger   logpkg.Logger
}

// NewListStore creates a ListStore with the given backing list storage,
// element codec, capacity bound, and TTL.
func NewListStore[T any](lists Lists, codec Codec[T], capacity int, ttl time.Duration, logger logpkg.Logger) *ListStore[T] {
	return &ListStore[T]{lists: lists, codec: codec, capacity: capacity, ttl: ttl, logger: logger}
}

// Capacity returns the configured capacity bound.
func (s *ListStore[T]) Capacity() int { return s.capacity }

// Get returns the cached list for key, establishing it from load on miss.
// On a hit durable storage is not touched. On cache unavailability the
// loader result is returned directly without a store attempt.
func (s *ListStore[T]) Get(ctx context.Context, key string, load Loader[T]) ([]T, error) {
	raw, ok, err := s.lists.GetList(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed, serving from durable storage", logpkg.F("key", key), logpkg.Err(err))
		return load(ctx, s.capacity)
	}
	if ok {
		items, decodeErr := s.decodeAll(raw)
		if decodeErr == nil {
			return items, nil
		}
		s.logger.Warn("cached list corrupt, reloading", logpkg.F("key", key), logpkg.Err(decodeErr))
		_ = s.lists.DelList(ctx, key)
	}

	items, err := load(ctx, s.capacity)
	if err != nil {
		return nil, err
	}
	raw = make([][]byte, len(items))
	for i, it := range items {
		b, encErr := s.codec.Encode(it)
		if encErr != nil {
			return nil, encErr
		}
		raw[i] = b
	}
	if err := s.lists.SetList(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("cache store failed", logpkg.F("key", key), logpkg.Err(err))
	}
	return items, nil
}

// Push prepends item to the cached list and trims to capacity. When the key
// is absent the list is established via Get first; the durable write for
// item happens before Push by construction, so the reload already contains
// it. Push is best-effort: cache trouble never fails the caller.
func (s *ListStore[T]) Push(ctx context.Context, key string, item T, load Loader[T]) error {
	b, err := s.codec.Encode(item)
	if err != nil {
		return err
	}
	pushed, err := s.lists.PushTrim(ctx, key, b, s.capacity, s.ttl)
	if err != nil {
		s.logger.Warn("cache push failed", logpkg.F("key", key), logpkg.Err(err))
		return nil
	}
	if !pushed {
		if _, err := s.Get(ctx, key, load); err != nil {
			s.logger.Warn("cache establish after push failed", logpkg.F("key", key), logpkg.Err(err))
		}
	}
	return nil
}

// Invalidate drops the cached list for key.
func (s *ListStore[T]) Invalidate(ctx context.Context, key string) {
	if err := s.lists.DelList(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed", logpkg.F("key", key), logpkg.Err(err))
	}
}

func (s *ListStore[T]) decodeAll(raw [][]byte) ([]T, error) {
	items := make([]T, len(raw))
	for i, b := range raw {
		it, err := s.codec.Decode(b)
		if err != nil {
			return nil, err
		}
		items[i] = it
	}
	return items, nil
}
