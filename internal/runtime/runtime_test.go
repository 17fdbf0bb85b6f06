package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/rzbill/feedline/internal/config"
	"github.com/rzbill/feedline/internal/graph"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	cfg.Feeds.BatchWidth = 2

	g := graph.NewMemory()
	for _, follower := range []int64{2, 3, 4} {
		g.Follow(follower, 1)
	}

	rt, err := Open(context.Background(), Options{Config: cfg, Graph: g})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenAndHealth(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestPublishFlowEndToEnd(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	// keep everything on the local column store
	if err := rt.Gates().Set(ctx, "feed_column_store", true); err != nil {
		t.Fatalf("gate set: %v", err)
	}

	summary, err := rt.Fanout().Distribute(ctx, 100, 1, 5000)
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if summary != "3 newsfeeds going to fanout, 2 batches created." {
		t.Fatalf("unexpected summary: %q", summary)
	}

	if err := rt.NewRunner().Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	for _, owner := range []int64{1, 2, 3, 4} {
		got, err := rt.Feeds().GetCached(ctx, owner)
		if err != nil {
			t.Fatalf("feed %d: %v", owner, err)
		}
		if len(got) != 1 || got[0].PostID != 100 {
			t.Fatalf("feed %d missing post: %+v", owner, got)
		}
	}
	if n, err := rt.Feeds().CountAll(ctx); err != nil || n != 4 {
		t.Fatalf("total entries: %d err=%v", n, err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Feeds.PageSize = cfg.Feeds.CapacityLimit + 1
	if _, err := Open(context.Background(), Options{Config: cfg}); err == nil {
		t.Fatal("expected validation error")
	}
}
