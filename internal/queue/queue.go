package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
	"github.com/rzbill/feedline/pkg/id"
	"github.com/rzbill/feedline/pkg/log"
)

// Options tunes delivery behavior.
type Options struct {
	LeaseMs        int64 // visibility timeout per delivery
	MaxDeliveries  int   // dead-letter after this many deliveries
	RetryBackoffMs int64 // base backoff; grows linearly with deliveries
}

// DefaultOptions match the worker defaults in config.
func DefaultOptions() Options {
	return Options{LeaseMs: 30_000, MaxDeliveries: 5, RetryBackoffMs: 1000}
}

// Task is one leased delivery. Deliveries counts this delivery; ExpiresAtMs
// is the lease deadline the caller must beat with Complete or Fail.
type Task struct {
	ID          id.ID
	Kind        string
	Payload     []byte
	Deliveries  int
	ExpiresAtMs int64
}

// Depth is a point-in-time census of the queue's sections.
type Depth struct {
	Available    int
	Retrying     int
	Leased       int
	DeadLettered int
}

// Queue is a named durable task queue.
type Queue struct {
	db     *pebblestore.DB
	name   string
	opts   Options
	gen    *id.Generator
	logger log.Logger

	// serializes dequeue and reclaim so two workers on one process never
	// lease the same task
	mu sync.Mutex

	// swappable clock for tests
	nowMs func() int64
}

// Open prepares a queue handle. Multiple handles on the same name share the
// keyspace but not the dequeue mutex; run one handle per process.
func Open(db *pebblestore.DB, name string, opts Options, logger log.Logger) *Queue {
	if opts.LeaseMs <= 0 {
		opts.LeaseMs = DefaultOptions().LeaseMs
	}
	if opts.MaxDeliveries <= 0 {
		opts.MaxDeliveries = DefaultOptions().MaxDeliveries
	}
	if opts.RetryBackoffMs <= 0 {
		opts.RetryBackoffMs = DefaultOptions().RetryBackoffMs
	}
	if logger == nil {
		logger = log.NewTestLogger()
	}
	return &Queue{
		db:     db,
		name:   name,
		opts:   opts,
		gen:    id.NewGenerator(),
		logger: logger.WithComponent("queue." + name),
		nowMs:  func() int64 { return time.Now().UnixMilli() },
	}
}

// Enqueue adds a task and makes it immediately available.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload []byte) (id.ID, error) {
	tid := q.gen.Next()
	rec, err := encodeTask(taskHeader{Kind: kind, EnqueuedAtMs: q.nowMs()}, payload)
	if err != nil {
		return id.Zero, err
	}

	b := q.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyTask(q.name, tid), rec, nil); err != nil {
		return id.Zero, err
	}
	if err := b.Set(keyAvail(q.name, tid), nil, nil); err != nil {
		return id.Zero, err
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return id.Zero, fmt.Errorf("queue: enqueue: %w", err)
	}
	return tid, nil
}

// Dequeue leases up to max available tasks, oldest first. An empty result
// means nothing is ready; the caller polls.
func (q *Queue) Dequeue(ctx context.Context, max int) ([]Task, error) {
	if max <= 0 {
		max = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.nowMs()
	if err := q.promoteDue(ctx, now, max*4); err != nil {
		return nil, err
	}

	prefix := queuePrefix(q.name, segAvail)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	var out []Task
	for ok := iter.First(); ok && len(out) < max; ok = iter.Next() {
		tid, err := id.FromBytes(iter.Key()[len(prefix):])
		if err != nil {
			continue
		}
		rec, err := q.db.Get(keyTask(q.name, tid))
		if err != nil {
			// availability entry orphaned by a completed task; drop it
			_ = b.Delete(iter.Key(), nil)
			continue
		}
		h, payload, err := decodeTask(rec)
		if err != nil {
			q.logger.Warn("dropping corrupt task", log.F("id", tid.String()))
			_ = b.Delete(iter.Key(), nil)
			_ = b.Delete(keyTask(q.name, tid), nil)
			continue
		}

		h.Deliveries++
		exp := now + q.opts.LeaseMs
		rewritten, err := encodeTask(h, payload)
		if err != nil {
			return nil, err
		}
		if err := b.Set(keyTask(q.name, tid), rewritten, nil); err != nil {
			return nil, err
		}
		if err := b.Set(keyTimed(q.name, segLease, exp, tid), nil, nil); err != nil {
			return nil, err
		}
		if err := b.Delete(iter.Key(), nil); err != nil {
			return nil, err
		}
		out = append(out, Task{ID: tid, Kind: h.Kind, Payload: payload, Deliveries: h.Deliveries, ExpiresAtMs: exp})
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	return out, nil
}

// Complete acknowledges a leased task, removing every trace of it.
func (q *Queue) Complete(ctx context.Context, t Task) error {
	b := q.db.NewBatch()
	defer b.Close()
	_ = b.Delete(keyTask(q.name, t.ID), nil)
	_ = b.Delete(keyTimed(q.name, segLease, t.ExpiresAtMs, t.ID), nil)
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("queue: complete: %w", err)
	}
	return nil
}

// Fail releases a leased task after a handler error. It schedules a retry
// with linear backoff, or dead-letters the task once MaxDeliveries is spent.
func (q *Queue) Fail(ctx context.Context, t Task) error {
	b := q.db.NewBatch()
	defer b.Close()
	_ = b.Delete(keyTimed(q.name, segLease, t.ExpiresAtMs, t.ID), nil)

	if t.Deliveries >= q.opts.MaxDeliveries {
		rec, err := q.db.Get(keyTask(q.name, t.ID))
		if err == nil {
			_ = b.Set(keyDLQ(q.name, t.ID), rec, nil)
		}
		_ = b.Delete(keyTask(q.name, t.ID), nil)
		q.logger.Warn("task dead-lettered",
			log.F("id", t.ID.String()),
			log.F("kind", t.Kind),
			log.F("deliveries", t.Deliveries))
	} else {
		ready := q.nowMs() + q.opts.RetryBackoffMs*int64(t.Deliveries)
		if err := b.Set(keyTimed(q.name, segRetry, ready, t.ID), nil, nil); err != nil {
			return err
		}
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return fmt.Errorf("queue: fail: %w", err)
	}
	return nil
}

// ReclaimExpired returns tasks whose lease deadline passed to availability.
// Run periodically; crashed workers rely on it for redelivery.
func (q *Queue) ReclaimExpired(ctx context.Context, nowMs int64) (int, error) {
	if nowMs <= 0 {
		nowMs = q.nowMs()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sweepTimed(ctx, segLease, nowMs, 0)
}

// promoteDue moves retry-scheduled tasks whose ready time passed into
// availability.
func (q *Queue) promoteDue(ctx context.Context, nowMs int64, max int) error {
	_, err := q.sweepTimed(ctx, segRetry, nowMs, max)
	return err
}

// sweepTimed scans a timed index ({ms}{id} keys) up to nowMs and re-adds the
// referenced tasks to availability.
func (q *Queue) sweepTimed(ctx context.Context, seg string, nowMs int64, max int) (int, error) {
	prefix := queuePrefix(q.name, seg)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	b := q.db.NewBatch()
	defer b.Close()
	moved := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		ms, tid, valid := splitTimed(iter.Key(), prefix)
		if !valid {
			continue
		}
		if ms > nowMs {
			break
		}
		_ = b.Delete(iter.Key(), nil)
		if err := b.Set(keyAvail(q.name, tid), nil, nil); err != nil {
			return moved, err
		}
		moved++
		if max > 0 && moved >= max {
			break
		}
	}
	if moved == 0 {
		return 0, nil
	}
	if err := q.db.CommitBatch(ctx, b); err != nil {
		return moved, fmt.Errorf("queue: sweep %s: %w", seg, err)
	}
	return moved, nil
}

// PurgeDeadLetters drops every dead-lettered task. Administrative use.
func (q *Queue) PurgeDeadLetters(ctx context.Context) (int, error) {
	prefix := queuePrefix(q.name, segDLQ)
	iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return 0, err
	}
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := q.db.DeleteRange(prefix, upperBound(prefix)); err != nil {
		return 0, fmt.Errorf("queue: purge dlq: %w", err)
	}
	return n, nil
}

// Depth counts tasks per section. Linear scan; intended for CLI and tests.
func (q *Queue) Depth(ctx context.Context) (Depth, error) {
	var d Depth
	for _, c := range []struct {
		seg string
		n   *int
	}{
		{segAvail, &d.Available},
		{segRetry, &d.Retrying},
		{segLease, &d.Leased},
		{segDLQ, &d.DeadLettered},
	} {
		prefix := queuePrefix(q.name, c.seg)
		iter, err := q.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
		if err != nil {
			return Depth{}, err
		}
		for ok := iter.First(); ok; ok = iter.Next() {
			*c.n++
		}
		if err := iter.Close(); err != nil {
			return Depth{}, err
		}
	}
	return d, nil
}
