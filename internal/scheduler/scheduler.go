// Package scheduler drives a resolved ExecutionPlan: sequential for Seq
// nodes, bounded-parallel for Par nodes, acquiring/executing/releasing
// executor instances for each Leaf and guaranteeing teardown of every
// instance it created (SPEC_FULL.md §4.F). Grounded on the teacher's
// group.go executeSerial/executeParallel buffered-output pattern,
// generalized from goroutine buffering to per-leaf tagged output.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/executor"
	"github.com/devloop-run/dl/internal/graph"
	"github.com/devloop-run/dl/internal/location"
	"github.com/devloop-run/dl/internal/logging"
	"github.com/devloop-run/dl/internal/output"
	"github.com/devloop-run/dl/internal/schema"
	"github.com/devloop-run/dl/internal/selector"
)

// ScriptResolver resolves a command task's Location to an executable script
// path on the host filesystem. *corpus.Corpus implements it by joining a
// relative Location path onto the project root.
type ScriptResolver interface {
	Resolve(taskName string) (string, error)
}

// Scheduler owns instance reuse and teardown for one plan invocation.
type Scheduler struct {
	Corpus      *corpus.Corpus
	Runtimes    map[string]executor.Runtime // keyed by ExecutorSpec.Type: "host", "container"
	Helpers     []location.Resolved
	Scripts     ScriptResolver
	WorkerCount int
	Out         *output.Output
	Color       bool
	Status      *output.StatusLine // optional; nil disables throttled status rendering

	mu        sync.Mutex
	instances map[string]*executor.Instance // keyed by selector.Identity
	created   []*executor.Instance          // teardown order: creation order
}

// New creates a Scheduler. workerCount <= 0 degenerates Par to sequential
// execution in declaration order (SPEC_FULL.md §8 property 8).
func New(c *corpus.Corpus, runtimes map[string]executor.Runtime, helpers []location.Resolved, scripts ScriptResolver, workerCount int, out *output.Output, color bool) *Scheduler {
	return &Scheduler{
		Corpus:      c,
		Runtimes:    runtimes,
		Helpers:     helpers,
		Scripts:     scripts,
		WorkerCount: workerCount,
		Out:         out,
		Color:       color,
		instances:   make(map[string]*executor.Instance),
	}
}

// IsRunning implements selector.Running.
func (s *Scheduler) IsRunning(executorName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.instances {
		if key == executorName || hasSuffix(key, "/"+executorName) {
			return true
		}
	}
	return false
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

// Run executes plan.Root to completion and tears down every instance this
// Scheduler created, regardless of outcome.
func (s *Scheduler) Run(ctx context.Context, plan *graph.Plan) error {
	log := logging.From(ctx)
	runErr := s.runNode(ctx, plan.Root, s.Out)

	s.mu.Lock()
	created := append([]*executor.Instance{}, s.created...)
	s.mu.Unlock()

	var tdErrs []error
	for i := len(created) - 1; i >= 0; i-- {
		inst := created[i]
		rt := s.Runtimes[inst.Spec.Type]
		if rt == nil {
			continue
		}
		log.Info().Str("executor", inst.Spec.Name).Msg("tearing down executor")
		if err := rt.TearDown(context.Background(), inst); err != nil {
			log.Error().Err(err).Str("executor", inst.Spec.Name).Msg("executor teardown failed")
			tdErrs = append(tdErrs, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if len(tdErrs) > 0 {
		return fmt.Errorf("teardown: %v", tdErrs[0])
	}
	return nil
}

func (s *Scheduler) runNode(ctx context.Context, n *graph.Node, out *output.Output) error {
	switch n.Kind {
	case graph.NodeSeq:
		for _, child := range n.Children {
			select {
			case <-ctx.Done():
				return &dlerrors.Cancelled{}
			default:
			}
			if err := s.runNode(ctx, child, out); err != nil {
				return err
			}
		}
		return nil

	case graph.NodePar:
		return s.runPar(ctx, n.Children, out)

	case graph.NodeLeaf:
		return s.runLeaf(ctx, n, out)

	default:
		return fmt.Errorf("scheduler: unknown node kind %d", n.Kind)
	}
}

// runPar runs children with bounded parallelism. With WorkerCount <= 1 it
// degenerates to strict sequential execution in declaration order
// (SPEC_FULL.md §8 property 8 / §5 "Determinism under single worker").
func (s *Scheduler) runPar(ctx context.Context, children []*graph.Node, out *output.Output) error {
	if s.WorkerCount <= 1 {
		for _, child := range children {
			if err := s.runNode(ctx, child, out); err != nil {
				return err
			}
		}
		return nil
	}

	buffers := make([]*output.Buffered, len(children))
	for i := range buffers {
		buffers[i] = output.NewBuffered(out)
	}

	var runningMu sync.Mutex
	running := make(map[string]bool, len(children))
	renderStatus := func() {
		if s.Status == nil {
			return
		}
		runningMu.Lock()
		names := make([]string, 0, len(running))
		for name := range running {
			names = append(names, name)
		}
		runningMu.Unlock()
		sort.Strings(names)
		s.Status.Update("running: " + strings.Join(names, ", "))
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.WorkerCount)

	for i, child := range children {
		i, child := i, child
		label := leafLabel(child)
		g.Go(func() error {
			runningMu.Lock()
			running[label] = true
			runningMu.Unlock()
			renderStatus()
			defer func() {
				runningMu.Lock()
				delete(running, label)
				runningMu.Unlock()
				renderStatus()
			}()

			childOut := buffers[i].Output()
			return s.runNode(gCtx, child, childOut)
		})
	}
	err := g.Wait()
	if s.Status != nil {
		s.Status.Clear()
	}

	for _, buf := range buffers {
		buf.Flush()
	}
	return err
}

// leafLabel names a child node for the throttled status line: the task
// name for a Leaf, else a generic placeholder for a nested Seq/Par group.
func leafLabel(n *graph.Node) string {
	if n.Kind == graph.NodeLeaf && n.Task != nil {
		return n.Task.Name
	}
	return "group"
}

func (s *Scheduler) runLeaf(ctx context.Context, n *graph.Node, out *output.Output) error {
	log := logging.From(ctx)

	spec, err := selector.Select(s.Corpus, n.Task, s)
	if err != nil {
		return err
	}

	inst, rt, err := s.acquireInstance(ctx, spec)
	if err != nil {
		return err
	}

	scriptPath, err := s.Scripts.Resolve(n.Task.Name)
	if err != nil {
		return err
	}

	log.Info().Str("task", n.Task.Name).Str("executor", spec.Name).Msg("task starting")

	var exportEnv []string
	if spec.Container != nil {
		exportEnv = spec.Container.ExportEnv
	}
	env := executor.FilterEnv(exportEnv)

	tagged := output.NewTagged(n.Task.Name, out, s.Color)
	exitCode, err := rt.Execute(ctx, inst, scriptPath, n.Args, env, tagged.Stdout(), tagged.Stderr())
	if err != nil {
		log.Error().Err(err).Str("task", n.Task.Name).Msg("task execution failed")
		return err
	}
	if exitCode != 0 {
		log.Error().Str("task", n.Task.Name).Int("exit_code", exitCode).Msg("task failed")
		return &dlerrors.TaskFailure{TaskName: n.Task.Name, ExitCode: exitCode}
	}
	log.Info().Str("task", n.Task.Name).Msg("task completed")
	return rt.Release(ctx, inst)
}

// acquireInstance returns the already-running instance for spec's identity
// if one exists in this plan invocation, else creates and Prepares a new
// one, recording it for later teardown.
func (s *Scheduler) acquireInstance(ctx context.Context, spec *schema.ExecutorSpec) (*executor.Instance, executor.Runtime, error) {
	log := logging.From(ctx)
	key := selector.Identity(spec)

	s.mu.Lock()
	inst, ok := s.instances[key]
	s.mu.Unlock()
	if ok {
		rt := s.Runtimes[inst.Spec.Type]
		return inst, rt, nil
	}

	rt := s.Runtimes[spec.Type]
	if rt == nil {
		return nil, nil, &dlerrors.ExecutorError{Kind: "start", Name: spec.Name, Err: fmt.Errorf("no runtime registered for type %q", spec.Type)}
	}

	log.Info().Str("executor", spec.Name).Str("type", spec.Type).Msg("preparing executor")
	newInst := executor.New(spec)
	if err := rt.Prepare(ctx, newInst, s.Helpers); err != nil {
		log.Error().Err(err).Str("executor", spec.Name).Msg("executor prepare failed")
		return nil, nil, err
	}

	s.mu.Lock()
	s.instances[key] = newInst
	s.created = append(s.created, newInst)
	s.mu.Unlock()

	return newInst, rt, nil
}

// ReusedContainerCount reports how many distinct instances this scheduler
// has created so far, for tests asserting container-reuse (§8 property 6).
func (s *Scheduler) ReusedContainerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}
