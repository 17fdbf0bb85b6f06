// Package fanout distributes a published post into its audience's feeds.
//
// The author's own feed entry is written synchronously on the publish path.
// Follower deliveries are sliced into bounded batches and enqueued as queue
// tasks; workers execute each batch as one idempotent durable write plus
// per-owner cache pushes. A batch that fails mid-way redelivers whole, and
// the duplicate writes collapse in the backend.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/internal/graph"
	"github.com/rzbill/feedline/internal/queue"
	"github.com/rzbill/feedline/internal/services/feeds"
	"github.com/rzbill/feedline/pkg/log"
)

// TaskKind tags fan-out batch tasks in the queue.
const TaskKind = "feed.fanout"

// batchPayload is the queue task body: one post delivered to one slice of
// its audience.
type batchPayload struct {
	PostID      int64   `json:"postId"`
	AuthorID    int64   `json:"authorId"`
	CreatedAtMs int64   `json:"createdAtMs"`
	OwnerIDs    []int64 `json:"ownerIds"`
}

// Engine drives distribution.
type Engine struct {
	feeds  *feeds.Service
	graph  graph.FollowerSource
	queue  *queue.Queue
	width  int
	logger log.Logger
}

// New creates an Engine. Width bounds how many follower deliveries share one
// queue task.
func New(svc *feeds.Service, g graph.FollowerSource, q *queue.Queue, width int, logger log.Logger) *Engine {
	if width <= 0 {
		width = 1000
	}
	if logger == nil {
		logger = log.NewTestLogger()
	}
	return &Engine{
		feeds:  svc,
		graph:  g,
		queue:  q,
		width:  width,
		logger: logger.WithComponent("fanout"),
	}
}

// Register wires the batch handler into a runner.
func (e *Engine) Register(r *queue.Runner) {
	r.Handle(TaskKind, e.handleBatch)
}

// Distribute publishes a post into feeds: the author's entry synchronously,
// follower entries via enqueued batches. It returns a human-readable summary
// of the distribution plan.
func (e *Engine) Distribute(ctx context.Context, postID, authorID, createdAtMs int64) (string, error) {
	self := feed.Entry{OwnerID: authorID, PostID: postID, AuthorID: authorID, CreatedAtMs: createdAtMs}
	if _, err := e.feeds.Create(ctx, self); err != nil {
		return "", fmt.Errorf("fanout: author entry: %w", err)
	}

	followers, err := e.graph.Followers(ctx, authorID)
	if err != nil {
		return "", fmt.Errorf("fanout: resolve followers: %w", err)
	}

	batches := 0
	for start := 0; start < len(followers); start += e.width {
		end := start + e.width
		if end > len(followers) {
			end = len(followers)
		}
		payload, err := json.Marshal(batchPayload{
			PostID:      postID,
			AuthorID:    authorID,
			CreatedAtMs: createdAtMs,
			OwnerIDs:    followers[start:end],
		})
		if err != nil {
			return "", err
		}
		if _, err := e.queue.Enqueue(ctx, TaskKind, payload); err != nil {
			return "", fmt.Errorf("fanout: enqueue batch: %w", err)
		}
		batches++
	}

	summary := fmt.Sprintf("%d newsfeeds going to fanout, %d batches created.", len(followers), batches)
	e.logger.Info(summary,
		log.F("post", postID),
		log.F("author", authorID))
	return summary, nil
}

// handleBatch executes one audience slice.
func (e *Engine) handleBatch(ctx context.Context, t queue.Task) error {
	var p batchPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("fanout: decode batch: %w", err)
	}
	entries := make([]feed.Entry, 0, len(p.OwnerIDs))
	for _, owner := range p.OwnerIDs {
		entries = append(entries, feed.Entry{
			OwnerID:     owner,
			PostID:      p.PostID,
			AuthorID:    p.AuthorID,
			CreatedAtMs: p.CreatedAtMs,
		})
	}
	if _, err := e.feeds.BatchCreate(ctx, entries); err != nil {
		return fmt.Errorf("fanout: deliver batch: %w", err)
	}
	return nil
}
