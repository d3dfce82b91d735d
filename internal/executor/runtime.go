package executor

import (
	"context"
	"io"

	"github.com/devloop-run/dl/internal/location"
)

// Runtime is the capability set the scheduler drives an Instance through:
// prepare, execute, release, teardown (SPEC_FULL.md §9 "Executor
// polymorphism"). Host and Container both implement it so the scheduler
// never needs to know which kind of instance it holds.
type Runtime interface {
	// Prepare materializes the per-invocation workspace: the helper
	// preamble and, for containers, the running container itself.
	Prepare(ctx context.Context, inst *Instance, helpers []location.Resolved) error

	// Execute runs script with argv against an already-Prepared instance,
	// streaming output to stdout/stderr, and returns the script's exit
	// code. Concurrent Execute calls against the same instance serialize.
	Execute(ctx context.Context, inst *Instance, scriptPath string, argv []string, env []string, stdout, stderr io.Writer) (int, error)

	// Release returns the instance to Ready for reuse by a later leaf in
	// the same plan invocation.
	Release(ctx context.Context, inst *Instance) error

	// TearDown permanently releases the instance's resources. Idempotent.
	TearDown(ctx context.Context, inst *Instance) error
}
