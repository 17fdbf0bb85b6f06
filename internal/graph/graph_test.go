package graph

import (
	"context"
	"testing"
)

func TestMemoryFollowUnfollow(t *testing.T) {
	g := NewMemory()
	ctx := context.Background()

	g.Follow(2, 1)
	g.Follow(3, 1)
	g.Follow(2, 1) // idempotent

	got, err := g.Followers(ctx, 1)
	if err != nil {
		t.Fatalf("followers: %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected followers: %v", got)
	}

	g.Unfollow(2, 1)
	got, _ = g.Followers(ctx, 1)
	if len(got) != 1 || got[0] != 3 {
		t.Fatalf("unexpected followers after unfollow: %v", got)
	}

	if got, _ := g.Followers(ctx, 99); len(got) != 0 {
		t.Fatalf("unknown user should have no followers: %v", got)
	}
}
