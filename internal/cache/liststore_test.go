package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	logpkg "github.com/rzbill/feedline/pkg/log"
)

// stringCodec is a trivial codec for tests.
type stringCodec struct{}

func (stringCodec) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (stringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// downBackend simulates a cache that cannot be reached.
type downBackend struct{}

func (downBackend) GetList(context.Context, string) ([][]byte, bool, error) {
	return nil, false, ErrUnavailable
}
func (downBackend) SetList(context.Context, string, [][]byte, time.Duration) error {
	return ErrUnavailable
}
func (downBackend) PushTrim(context.Context, string, []byte, int, time.Duration) (bool, error) {
	return false, ErrUnavailable
}
func (downBackend) DelList(context.Context, string) error { return ErrUnavailable }

func countingLoader(items []string, calls *int) Loader[string] {
	return func(_ context.Context, limit int) ([]string, error) {
		*calls++
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		return items, nil
	}
}

func newTestListStore(backend Lists, capacity int) *ListStore[string] {
	return NewListStore[string](backend, stringCodec{}, capacity, time.Minute, logpkg.NewTestLogger())
}

func TestGetReadThrough(t *testing.T) {
	s := newTestListStore(NewMemory(), 10)
	ctx := context.Background()
	calls := 0
	load := countingLoader([]string{"c", "b", "a"}, &calls)

	// miss loads and stores
	items, err := s.Get(ctx, "k", load)
	if err != nil || len(items) != 3 {
		t.Fatalf("first get: %v %v", items, err)
	}
	if calls != 1 {
		t.Fatalf("loader should run once, ran %d", calls)
	}

	// hit does not touch the loader
	items, err = s.Get(ctx, "k", load)
	if err != nil || len(items) != 3 || items[0] != "c" {
		t.Fatalf("second get: %v %v", items, err)
	}
	if calls != 1 {
		t.Fatalf("loader should not rerun on hit, ran %d", calls)
	}
}

func TestGetEmptyOwnerCached(t *testing.T) {
	s := newTestListStore(NewMemory(), 10)
	ctx := context.Background()
	calls := 0
	load := countingLoader(nil, &calls)

	if items, err := s.Get(ctx, "k", load); err != nil || len(items) != 0 {
		t.Fatalf("empty get: %v %v", items, err)
	}
	if _, err := s.Get(ctx, "k", load); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("truly-empty list should be cached, loader ran %d times", calls)
	}
}

func TestPushCoherence(t *testing.T) {
	s := newTestListStore(NewMemory(), 10)
	ctx := context.Background()
	calls := 0
	load := countingLoader([]string{"b", "a"}, &calls)

	if _, err := s.Get(ctx, "k", load); err != nil {
		t.Fatalf("establish: %v", err)
	}
	if err := s.Push(ctx, "k", "c", load); err != nil {
		t.Fatalf("push: %v", err)
	}
	items, err := s.Get(ctx, "k", load)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if items[0] != "c" {
		t.Fatalf("pushed item should lead, got %v", items)
	}
}

func TestPushOnAbsentEstablishes(t *testing.T) {
	s := newTestListStore(NewMemory(), 10)
	ctx := context.Background()
	calls := 0
	// durable storage already contains the pushed item by construction
	load := countingLoader([]string{"c", "b", "a"}, &calls)

	if err := s.Push(ctx, "k", "c", load); err != nil {
		t.Fatalf("push: %v", err)
	}
	if calls != 1 {
		t.Fatalf("push on absent key should run loader once, ran %d", calls)
	}
	items, _ := s.Get(ctx, "k", load)
	if len(items) != 3 || items[0] != "c" {
		t.Fatalf("unexpected list after establish: %v", items)
	}
}

func TestCapacityBoundAfterManyPushes(t *testing.T) {
	const capacity = 5
	s := newTestListStore(NewMemory(), capacity)
	ctx := context.Background()
	calls := 0
	load := countingLoader(nil, &calls)

	if _, err := s.Get(ctx, "k", load); err != nil {
		t.Fatalf("establish: %v", err)
	}
	for i := 0; i < 50; i++ {
		if err := s.Push(ctx, "k", "v"+strconv.Itoa(i), load); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	items, err := s.Get(ctx, "k", load)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(items) != capacity {
		t.Fatalf("capacity %d violated: %d items", capacity, len(items))
	}
	if items[0] != "v49" {
		t.Fatalf("newest push should lead, got %v", items[0])
	}
}

func TestUnavailableBackendFallsThrough(t *testing.T) {
	s := newTestListStore(downBackend{}, 10)
	ctx := context.Background()
	calls := 0
	load := countingLoader([]string{"b", "a"}, &calls)

	items, err := s.Get(ctx, "k", load)
	if err != nil || len(items) != 2 {
		t.Fatalf("get should fall through: %v %v", items, err)
	}
	// push must not fail the caller either
	if err := s.Push(ctx, "k", "c", load); err != nil {
		t.Fatalf("push should be best-effort: %v", err)
	}
}
