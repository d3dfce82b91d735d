// Package selector picks, for a task's declared needs, an executor whose
// provides satisfy them, preferring reuse of an already-running compatible
// instance (SPEC_FULL.md §4.D).
package selector

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/schema"
)

// Running reports the executor-spec identities with an already-acquired,
// reusable instance within the current plan invocation. The Selector
// queries this to prefer reuse over creating a new instance.
type Running interface {
	IsRunning(executorName string) bool
}

// Select picks the executor to run t against. t.CustomExecutor, if non-nil,
// is returned verbatim. The scheduler keys instances by executor type and
// name, so leaves whose custom executors share a type and name share one
// instance rather than each getting a fresh one.
func Select(c *corpus.Corpus, t *schema.TaskSpec, running Running) (*schema.ExecutorSpec, error) {
	if t.CustomExecutor != nil {
		return t.CustomExecutor, nil
	}

	var candidates []*schema.ExecutorSpec
	for _, e := range c.Executors {
		if satisfies(e, t.Needs) {
			candidates = append(candidates, e)
		}
	}
	if c.DefaultExecutor != nil && satisfies(c.DefaultExecutor, t.Needs) {
		candidates = append(candidates, c.DefaultExecutor)
	}

	if len(candidates) == 0 {
		return nil, &dlerrors.PlanError{Kind: "no-executor", Target: t.Name}
	}

	// Prefer an already-running compatible instance.
	if running != nil {
		for _, cand := range candidates {
			if running.IsRunning(cand.Name) {
				return cand, nil
			}
		}
	}
	return candidates[0], nil
}

// satisfies reports whether e's provides[] satisfy every entry of needs.
func satisfies(e *schema.ExecutorSpec, needs []schema.NeedEntry) bool {
	for _, need := range needs {
		if !satisfiesOne(e, need) {
			return false
		}
	}
	return true
}

func satisfiesOne(e *schema.ExecutorSpec, need schema.NeedEntry) bool {
	for _, p := range e.Provides {
		if p.Name != need.Name {
			continue
		}
		if need.Matcher == "" {
			return true
		}
		if p.Version == "" {
			continue // a need with a version matcher cannot be satisfied by an unversioned provide
		}
		v, err := semver.NewVersion(p.Version)
		if err != nil {
			continue
		}
		constraints, err := semver.NewConstraint(need.Matcher)
		if err != nil {
			continue
		}
		if constraints.Check(v) {
			return true
		}
	}
	return false
}

// Identity returns a stable key identifying an executor spec by its type
// and name ("type/name"), used by the scheduler's reuse table
// (SPEC_FULL.md §4.E "Reuse policy").
func Identity(e *schema.ExecutorSpec) string {
	return fmt.Sprintf("%s/%s", e.Type, e.Name)
}
