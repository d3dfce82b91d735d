// Package lifecycle owns process-exit orchestration: signal registration,
// a process-wide cancellation flag, and the guarantee that every registered
// teardown runs exactly once before the process exits. Ported from the
// original implementation's atomic-bool Ctrl-C flag (sigint.rs).
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// TearDownFunc releases one executor instance. It must be idempotent;
// Controller guarantees at-most-one call per registration regardless.
type TearDownFunc func(context.Context) error

// Controller coordinates signal-driven cancellation and guarantees every
// registered teardown runs before the controller's Shutdown returns.
type Controller struct {
	cancelled atomic.Bool

	mu        sync.Mutex
	teardowns []registered
}

type registered struct {
	name string
	fn   TearDownFunc
	done bool
}

// New creates a Controller and starts listening for SIGINT/SIGTERM. Call
// the returned CancelFunc to release the signal handler and cancel the
// returned context.
func New(ctx context.Context) (*Controller, context.Context, context.CancelFunc) {
	c := &Controller{}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	derived, cancel := context.WithCancel(sigCtx)

	go func() {
		<-sigCtx.Done()
		c.cancelled.Store(true)
		cancel()
	}()

	return c, derived, func() {
		stop()
		cancel()
	}
}

// Cancelled reports whether a shutdown signal has been observed.
func (c *Controller) Cancelled() bool {
	return c.cancelled.Load()
}

// Register records fn to be run during Shutdown, tagged with name for
// diagnostics. Registration order is preserved; teardowns run in reverse
// registration order, mirroring normal defer-stack semantics.
func (c *Controller) Register(name string, fn TearDownFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardowns = append(c.teardowns, registered{name: name, fn: fn})
}

// Shutdown runs every registered teardown exactly once, in reverse
// registration order, collecting (not short-circuiting on) individual
// failures so one stuck container doesn't prevent others from being torn
// down.
func (c *Controller) Shutdown(ctx context.Context) []error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for i := len(c.teardowns) - 1; i >= 0; i-- {
		t := &c.teardowns[i]
		if t.done {
			continue
		}
		t.done = true
		if err := t.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
