package queue

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/feedline/pkg/log"
)

// Handler processes one task delivery. A nil return completes the task; an
// error return releases it for retry.
type Handler func(ctx context.Context, t Task) error

// RunnerOptions tunes the worker pool.
type RunnerOptions struct {
	Workers      int
	PollInterval time.Duration
	// ReclaimInterval spaces expired-lease sweeps. Zero picks a default.
	ReclaimInterval time.Duration
}

// Runner drains a queue with a pool of workers, dispatching tasks to
// handlers registered by kind.
type Runner struct {
	queue    *Queue
	handlers map[string]Handler
	opts     RunnerOptions
	logger   log.Logger
}

// NewRunner builds a runner over the queue.
func NewRunner(q *Queue, opts RunnerOptions, logger log.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = 5 * time.Second
	}
	if logger == nil {
		logger = log.NewTestLogger()
	}
	return &Runner{
		queue:    q,
		handlers: make(map[string]Handler),
		opts:     opts,
		logger:   logger.WithComponent("queue.runner"),
	}
}

// Handle registers the handler for a task kind. Not safe to call after Run.
func (r *Runner) Handle(kind string, h Handler) {
	r.handlers[kind] = h
}

// Run blocks, processing tasks until ctx is canceled. It returns the first
// worker error, or nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < r.opts.Workers; i++ {
		g.Go(func() error {
			for {
				busy, err := r.runOnce(ctx)
				if err != nil {
					return err
				}
				if busy {
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(r.opts.PollInterval):
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(r.opts.ReclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := r.queue.ReclaimExpired(ctx, 0); err != nil {
					r.logger.Warn("lease reclaim failed", log.Err(err))
				} else if n > 0 {
					r.logger.Info("reclaimed expired leases", log.F("count", n))
				}
			}
		}
	})

	return g.Wait()
}

// Drain processes tasks until nothing is immediately available, then
// returns. Retries whose backoff has not elapsed are left in place. Used by
// tests and one-shot CLI runs.
func (r *Runner) Drain(ctx context.Context) error {
	for {
		busy, err := r.runOnce(ctx)
		if err != nil {
			return err
		}
		if !busy {
			return nil
		}
	}
}

// runOnce leases and processes one batch. Returns whether any task was seen.
func (r *Runner) runOnce(ctx context.Context) (bool, error) {
	tasks, err := r.queue.Dequeue(ctx, 1)
	if err != nil {
		return false, err
	}
	if len(tasks) == 0 {
		return false, nil
	}
	for _, t := range tasks {
		r.dispatch(ctx, t)
	}
	return true, nil
}

func (r *Runner) dispatch(ctx context.Context, t Task) {
	h, ok := r.handlers[t.Kind]
	if !ok {
		// no handler registered; treat as a permanent failure
		r.logger.Error("no handler for task kind", log.F("kind", t.Kind), log.F("id", t.ID.String()))
		t.Deliveries = r.queue.opts.MaxDeliveries
		if err := r.queue.Fail(ctx, t); err != nil {
			r.logger.Error("dead-letter failed", log.Err(err))
		}
		return
	}
	if err := h(ctx, t); err != nil {
		r.logger.Warn("task failed",
			log.F("kind", t.Kind),
			log.F("id", t.ID.String()),
			log.F("deliveries", t.Deliveries),
			log.Err(err))
		if ferr := r.queue.Fail(ctx, t); ferr != nil {
			r.logger.Error("release failed", log.Err(fmt.Errorf("%v (after %w)", ferr, err)))
		}
		return
	}
	if err := r.queue.Complete(ctx, t); err != nil {
		r.logger.Error("complete failed", log.F("id", t.ID.String()), log.Err(err))
	}
}
