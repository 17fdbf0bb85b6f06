// Package feeds serves per-user inbox feeds over a read-through cache and
// two interchangeable durable backends.
package feeds

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/feedline/internal/cache"
	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/internal/gate"
	"github.com/rzbill/feedline/pkg/log"
)

// Options carries the serving tunables.
type Options struct {
	// CapacityLimit bounds each cached list.
	CapacityLimit int
	// PageSize is the page length returned by Page.
	PageSize int
	// CacheTTL expires cached lists.
	CacheTTL time.Duration
}

// Service fronts the feed backends. The feed_column_store gate selects the
// durable backend per operation; both backends share one cache keyspace, and
// the per-family codecs reject each other's encoding, so a flip degrades to
// a cache reload instead of serving mixed encodings.
type Service struct {
	gate   gate.Gate
	row    feed.Store
	column feed.Store

	rowLists    *cache.ListStore[feed.Entry]
	columnLists *cache.ListStore[feed.Entry]

	pageSize int
	logger   log.Logger
}

// New creates the service. Either backend may be nil; the gate's selection
// falls back to the one that exists.
func New(g gate.Gate, row, column feed.Store, lists cache.Lists, opts Options) *Service {
	return NewWithLogger(g, row, column, lists, opts, log.NewTestLogger())
}

// NewWithLogger is New with an explicit logger.
func NewWithLogger(g gate.Gate, row, column feed.Store, lists cache.Lists, opts Options, logger log.Logger) *Service {
	if opts.CapacityLimit <= 0 {
		opts.CapacityLimit = 200
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	logger = logger.WithComponent("feeds")
	return &Service{
		gate:        g,
		row:         row,
		column:      column,
		rowLists:    cache.NewListStore[feed.Entry](lists, feed.RowCodec{}, opts.CapacityLimit, opts.CacheTTL, logger),
		columnLists: cache.NewListStore[feed.Entry](lists, feed.ColumnCodec{}, opts.CapacityLimit, opts.CacheTTL, logger),
		pageSize:    opts.PageSize,
		logger:      logger,
	}
}

// PageSize returns the configured page length.
func (s *Service) PageSize() int { return s.pageSize }

func feedKey(owner int64) string { return fmt.Sprintf("newsfeeds:%d", owner) }

// pick resolves the active backend pair for this operation.
func (s *Service) pick(ctx context.Context) (feed.Store, *cache.ListStore[feed.Entry]) {
	if s.gate.IsOn(ctx, gate.FeedColumnStore) {
		if s.column != nil {
			return s.column, s.columnLists
		}
		return s.row, s.rowLists
	}
	if s.row != nil {
		return s.row, s.rowLists
	}
	return s.column, s.columnLists
}

func (s *Service) loader(store feed.Store, owner int64) cache.Loader[feed.Entry] {
	return func(ctx context.Context, limit int) ([]feed.Entry, error) {
		return store.List(ctx, owner, feed.NoBound(), limit, true)
	}
}

// GetCached returns the owner's newest entries from cache, establishing the
// list from durable storage on miss. At most CapacityLimit entries.
func (s *Service) GetCached(ctx context.Context, owner int64) ([]feed.Entry, error) {
	store, lists := s.pick(ctx)
	return lists.Get(ctx, feedKey(owner), s.loader(store, owner))
}

// Create writes one entry durably, then pushes it onto the owner's cached
// list. The durable write always precedes the cache write.
func (s *Service) Create(ctx context.Context, e feed.Entry) (feed.Entry, error) {
	store, lists := s.pick(ctx)
	created, err := store.Create(ctx, e)
	if err != nil {
		return feed.Entry{}, err
	}
	if err := lists.Push(ctx, feedKey(created.OwnerID), created, s.loader(store, created.OwnerID)); err != nil {
		return feed.Entry{}, err
	}
	return created, nil
}

// BatchCreate writes a batch durably, then pushes each entry onto its
// owner's cached list. Safe to retry end-to-end: the durable write is
// idempotent and a re-push only displaces older entries that a reload would
// drop anyway.
func (s *Service) BatchCreate(ctx context.Context, entries []feed.Entry) ([]feed.Entry, error) {
	store, lists := s.pick(ctx)
	created, err := store.BatchCreate(ctx, entries)
	if err != nil {
		return nil, err
	}
	for _, e := range created {
		if err := lists.Push(ctx, feedKey(e.OwnerID), e, s.loader(store, e.OwnerID)); err != nil {
			return nil, err
		}
	}
	return created, nil
}

// Page returns one page of the owner's feed around a timestamp bound, plus
// whether more pages exist in the older direction.
//
// The no-bound and older directions serve from cache when the cached window
// can answer completely; otherwise they fall through to durable storage with
// a page-size+1 probe. The newer direction always reads durable storage and
// returns everything past the bound, since "new entries since the top of my
// feed" is unbounded by page size.
func (s *Service) Page(ctx context.Context, owner int64, b feed.Bound) ([]feed.Entry, bool, error) {
	store, lists := s.pick(ctx)

	if b.Kind == feed.BoundNewer {
		entries, err := store.List(ctx, owner, b, 0, true)
		return entries, false, err
	}

	cached, err := lists.Get(ctx, feedKey(owner), s.loader(store, owner))
	if err != nil {
		return nil, false, err
	}
	window := cached
	if b.Kind == feed.BoundOlder {
		window = window[:0:0]
		for _, e := range cached {
			if e.CreatedAtMs < b.TsMs {
				window = append(window, e)
			}
		}
	}
	// the cached window answers completely when it holds a full probe or
	// when the whole feed fits under the capacity bound
	if len(window) > s.pageSize || len(cached) < lists.Capacity() {
		return clampPage(window, s.pageSize)
	}

	probe, err := store.List(ctx, owner, b, s.pageSize+1, true)
	if err != nil {
		return nil, false, err
	}
	return clampPage(probe, s.pageSize)
}

func clampPage(entries []feed.Entry, pageSize int) ([]feed.Entry, bool, error) {
	if len(entries) > pageSize {
		return entries[:pageSize], true, nil
	}
	return entries, false, nil
}

// Count returns the owner's durable entry count.
func (s *Service) Count(ctx context.Context, owner int64) (int, error) {
	store, _ := s.pick(ctx)
	return store.Count(ctx, owner)
}

// CountAll returns the total durable entry count across owners.
func (s *Service) CountAll(ctx context.Context) (int, error) {
	store, _ := s.pick(ctx)
	return store.CountAll(ctx)
}

// Invalidate drops the owner's cached list. The next read re-establishes it
// from durable storage.
func (s *Service) Invalidate(ctx context.Context, owner int64) {
	_, lists := s.pick(ctx)
	lists.Invalidate(ctx, feedKey(owner))
}
