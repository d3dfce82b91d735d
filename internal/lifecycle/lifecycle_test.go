package lifecycle

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownRunsEachTeardownOnce(t *testing.T) {
	c, ctx, cancel := New(context.Background())
	defer cancel()

	calls := 0
	c.Register("a", func(context.Context) error {
		calls++
		return nil
	})

	c.Shutdown(ctx)
	c.Shutdown(ctx) // idempotent: second call must not re-run teardowns

	if calls != 1 {
		t.Errorf("teardown ran %d times, want 1", calls)
	}
}

func TestShutdownReverseOrder(t *testing.T) {
	c, ctx, cancel := New(context.Background())
	defer cancel()

	var order []string
	c.Register("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	c.Register("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	c.Shutdown(ctx)

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("teardown order = %v, want [second first]", order)
	}
}

func TestShutdownCollectsErrors(t *testing.T) {
	c, ctx, cancel := New(context.Background())
	defer cancel()

	boom := errors.New("boom")
	c.Register("ok", func(context.Context) error { return nil })
	c.Register("fails", func(context.Context) error { return boom })

	errs := c.Shutdown(ctx)
	if len(errs) != 1 {
		t.Fatalf("want 1 error, got %d: %v", len(errs), errs)
	}
}

func TestNotCancelledInitially(t *testing.T) {
	c, _, cancel := New(context.Background())
	defer cancel()

	if c.Cancelled() {
		t.Error("expected Cancelled() to be false before any signal")
	}
}
