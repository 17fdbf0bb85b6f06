// Package graph abstracts the social graph lookups fan-out depends on. The
// graph itself lives outside this service; deployments plug in an adapter,
// and tests use the in-memory implementation.
package graph

import (
	"context"
	"sort"
	"sync"
)

// FollowerSource resolves the follower set of a user. Implementations should
// return a stable snapshot; fan-out captures it once per post.
type FollowerSource interface {
	Followers(ctx context.Context, userID int64) ([]int64, error)
}

// Memory is a mutable in-process FollowerSource.
type Memory struct {
	mu        sync.RWMutex
	followers map[int64]map[int64]struct{} // followee -> follower set
}

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{followers: make(map[int64]map[int64]struct{})}
}

// Follow records follower watching followee. Idempotent.
func (m *Memory) Follow(follower, followee int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.followers[followee]
	if !ok {
		set = make(map[int64]struct{})
		m.followers[followee] = set
	}
	set[follower] = struct{}{}
}

// Unfollow removes the edge if present.
func (m *Memory) Unfollow(follower, followee int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.followers[followee], follower)
}

// Followers implements FollowerSource. The result is sorted for determinism.
func (m *Memory) Followers(_ context.Context, userID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.followers[userID]
	out := make([]int64, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
