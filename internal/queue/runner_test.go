package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestRunnerDrainProcessesAll(t *testing.T) {
	q := newTestQueue(t, Options{})
	ctx := context.Background()

	var handled atomic.Int64
	r := NewRunner(q, RunnerOptions{}, nil)
	r.Handle("job", func(ctx context.Context, task Task) error {
		handled.Add(1)
		return nil
	})

	for i := 0; i < 7; i++ {
		if _, err := q.Enqueue(ctx, "job", nil); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := r.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if handled.Load() != 7 {
		t.Fatalf("handled %d of 7", handled.Load())
	}
	d, _ := q.Depth(ctx)
	if d != (Depth{}) {
		t.Fatalf("queue not empty: %+v", d)
	}
}

func TestRunnerRetriesFailedTask(t *testing.T) {
	q := newTestQueue(t, Options{RetryBackoffMs: 1})
	ctx := context.Background()
	now := int64(1_000_000)
	q.nowMs = func() int64 { now += 10; return now }

	var attempts atomic.Int64
	r := NewRunner(q, RunnerOptions{}, nil)
	r.Handle("flaky", func(ctx context.Context, task Task) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	if _, err := q.Enqueue(ctx, "flaky", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := r.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts.Load())
	}
	d, _ := q.Depth(ctx)
	if d != (Depth{}) {
		t.Fatalf("queue not empty: %+v", d)
	}
}

func TestRunnerDeadLettersUnhandledKind(t *testing.T) {
	q := newTestQueue(t, Options{MaxDeliveries: 3})
	ctx := context.Background()

	r := NewRunner(q, RunnerOptions{}, nil)
	if _, err := q.Enqueue(ctx, "unknown", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := r.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	d, _ := q.Depth(ctx)
	if d.DeadLettered != 1 {
		t.Fatalf("expected dead letter: %+v", d)
	}
}
