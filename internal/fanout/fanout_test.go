package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/feedline/internal/cache"
	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/internal/gate"
	"github.com/rzbill/feedline/internal/graph"
	"github.com/rzbill/feedline/internal/queue"
	"github.com/rzbill/feedline/internal/services/feeds"
	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
)

type fixture struct {
	engine *Engine
	runner *queue.Runner
	feeds  *feeds.Service
	graph  *graph.Memory
	queue  *queue.Queue
}

func newFixture(t *testing.T, width int) *fixture {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir: t.TempDir(),
		Fsync:   pebblestore.FsyncModeNever,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := feeds.New(
		gate.Static{gate.FeedColumnStore: true},
		nil,
		feed.NewColumnStore(db),
		cache.NewMemory(),
		feeds.Options{CapacityLimit: 50, PageSize: 10},
	)
	g := graph.NewMemory()
	q := queue.Open(db, "fanout", queue.Options{RetryBackoffMs: 1}, nil)
	e := New(svc, g, q, width, nil)
	r := queue.NewRunner(q, queue.RunnerOptions{}, nil)
	e.Register(r)
	return &fixture{engine: e, runner: r, feeds: svc, graph: g, queue: q}
}

func TestDistributeSummary(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	for _, follower := range []int64{2, 3, 4, 5, 6} {
		f.graph.Follow(follower, 1)
	}

	summary, err := f.engine.Distribute(ctx, 100, 1, 5000)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if summary != "5 newsfeeds going to fanout, 2 batches created." {
		t.Fatalf("unexpected summary: %q", summary)
	}
	d, _ := f.queue.Depth(ctx)
	if d.Available != 2 {
		t.Fatalf("expected 2 queued batches, got %+v", d)
	}
}

func TestDistributeDeliversToAllFollowers(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	followers := []int64{2, 3, 4, 5, 6}
	for _, follower := range followers {
		f.graph.Follow(follower, 1)
	}

	if _, err := f.engine.Distribute(ctx, 100, 1, 5000); err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if err := f.runner.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// the author sees their own post immediately
	authorFeed, err := f.feeds.GetCached(ctx, 1)
	if err != nil {
		t.Fatalf("author feed: %v", err)
	}
	if len(authorFeed) != 1 || authorFeed[0].PostID != 100 {
		t.Fatalf("author feed missing own post: %+v", authorFeed)
	}

	for _, follower := range followers {
		got, err := f.feeds.GetCached(ctx, follower)
		if err != nil {
			t.Fatalf("follower %d feed: %v", follower, err)
		}
		if len(got) != 1 || got[0].PostID != 100 || got[0].AuthorID != 1 {
			t.Fatalf("follower %d missing delivery: %+v", follower, got)
		}
	}
}

func TestDistributeNoFollowers(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	summary, err := f.engine.Distribute(ctx, 100, 1, 5000)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if summary != "0 newsfeeds going to fanout, 0 batches created." {
		t.Fatalf("unexpected summary: %q", summary)
	}
	d, _ := f.queue.Depth(ctx)
	if d.Available != 0 {
		t.Fatalf("no batches expected: %+v", d)
	}
}

func TestRedeliveredBatchIsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.graph.Follow(2, 1)
	f.graph.Follow(3, 1)

	if _, err := f.engine.Distribute(ctx, 100, 1, 5000); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	// first delivery fails after the durable write; the task redelivers
	tasks, err := f.queue.Dequeue(ctx, 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("dequeue: tasks=%v err=%v", tasks, err)
	}
	if err := f.engine.handleBatch(ctx, tasks[0]); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.queue.Fail(ctx, tasks[0]); err != nil {
		t.Fatalf("fail: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // let the retry backoff elapse
	if err := f.runner.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	for _, follower := range []int64{2, 3} {
		if n, _ := f.feeds.Count(ctx, follower); n != 1 {
			t.Fatalf("follower %d has %d entries after redelivery", follower, n)
		}
	}
}
