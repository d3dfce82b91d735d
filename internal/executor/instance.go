package executor

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/devloop-run/dl/internal/schema"
)

// Instance is a live ExecutorInstance: one Host process or Container,
// bound to a single plan invocation (SPEC_FULL.md §3).
type Instance struct {
	ID   uuid.UUID
	Spec *schema.ExecutorSpec

	mu    sync.Mutex
	state State

	// execSem serializes concurrent Execute calls against this instance to
	// one-at-a-time, since a container (and a host process group) can only
	// run one foreground command at a time.
	execSem chan struct{}

	// Per-invocation scratch workspace (both variants).
	WorkDir string

	// Container-specific.
	ContainerID string
	Network     string
}

// New constructs an Instance in the Constructed state.
func New(spec *schema.ExecutorSpec) *Instance {
	return &Instance{
		ID:      uuid.New(),
		Spec:    spec,
		state:   StateConstructed,
		execSem: make(chan struct{}, 1),
	}
}

// ShortID returns the first 8 hex characters of the instance ID, used in
// generated container names (SPEC_FULL.md §3.1).
func (i *Instance) ShortID() string {
	return i.ID.String()[:8]
}

// State returns the instance's current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// transition validates and applies a state change, guarded by i.mu.
func (i *Instance) transition(to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	next, err := Transition(i.state, i.Spec.Name, to)
	if err != nil {
		return err
	}
	i.state = next
	return nil
}

// acquire blocks until no other Execute is in flight against this
// instance, then returns a release function.
func (i *Instance) acquire() func() {
	i.execSem <- struct{}{}
	return func() { <-i.execSem }
}

// fail transitions the instance to Failed, recording why. Idempotent: a
// second call on an already-Failed instance is a no-op.
func (i *Instance) fail(cause error) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state == StateFailed {
		return nil
	}
	i.state = StateFailed
	return fmt.Errorf("executor %q failed: %w", i.Spec.Name, cause)
}
