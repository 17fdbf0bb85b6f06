package workerrun

import (
	"context"
	"testing"
	"time"
)

func TestRunStopsOnCancel(t *testing.T) {
	t.Setenv("FEEDLINE_FSYNC", "never")
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{DataDir: dir})
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
