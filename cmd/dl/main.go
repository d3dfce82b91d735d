// Command dl is the dev-loop CLI entrypoint: it parses the task/preset
// invocation, loads the project corpus, resolves an execution plan, and
// drives the scheduler against it. Grounded on the teacher's cli.go flag
// parsing and exit-code conventions (run returning an int rather than
// calling os.Exit directly, for testability).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/devloop-run/dl/internal/config"
	"github.com/devloop-run/dl/internal/containerengine/dockercli"
	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/executor"
	"github.com/devloop-run/dl/internal/graph"
	"github.com/devloop-run/dl/internal/lifecycle"
	"github.com/devloop-run/dl/internal/location"
	"github.com/devloop-run/dl/internal/logging"
	"github.com/devloop-run/dl/internal/output"
	"github.com/devloop-run/dl/internal/preset"
	"github.com/devloop-run/dl/internal/scheduler"
)

// Exit codes, per SPEC_FULL.md §6.
const (
	ExitOK            = 0
	ExitGeneralError  = 1
	ExitCorpusError   = 2
	ExitUnknownTarget = 3
	ExitCancelled     = 130
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("dl", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Usage = func() { printUsage(os.Stderr) }
	if err := fs.Parse(argv); err != nil {
		return ExitGeneralError
	}

	args := fs.Args()
	if len(args) == 0 {
		printUsage(os.Stderr)
		return ExitGeneralError
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dl: %v\n", err)
		return ExitCorpusError
	}

	cfg, err := config.Load(projectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dl: load config: %v\n", err)
		return ExitGeneralError
	}

	logger := logging.WithInvocation(logging.New(*verbose), uuid.New())
	ctrl, ctx, stopSignals := lifecycle.New(context.Background())
	defer stopSignals()
	ctx = logging.Into(ctx, logger)

	cmd, rest := args[0], args[1:]

	var code int
	switch cmd {
	case "exec":
		code = runExec(ctx, ctrl, projectRoot, cfg, rest)
	case "run":
		code = runPreset(ctx, ctrl, projectRoot, cfg, rest)
	case "list":
		code = runList(ctx, projectRoot, rest)
	case "clean":
		code = runClean(ctx, projectRoot, cfg)
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		code = ExitOK
	default:
		fmt.Fprintf(os.Stderr, "dl: unknown command %q\n", cmd)
		printUsage(os.Stderr)
		code = ExitGeneralError
	}

	if ctrl.Cancelled() && code == ExitOK {
		return ExitCancelled
	}
	return code
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: dl [-v] <command> [args...]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  exec TASK [OPTION...] [-- ARGS...]   resolve and run a task")
	fmt.Fprintln(w, "  run PRESET                           run every task tagged into PRESET")
	fmt.Fprintln(w, "  list [TASK [OPTION...]]              enumerate tasks and oneof options")
	fmt.Fprintln(w, "  clean                                remove scratch workspaces and dangling containers")
}

// findProjectRoot walks up from the working directory looking for a .dl
// directory, mirroring the teacher's GitRoot convention but keyed on dl's
// own project marker instead of .git.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".dl")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no .dl directory found in this directory or any parent")
		}
		dir = parent
	}
}

// loadCorpus wires the Fetcher and validator and loads the project corpus.
// Callers map a load failure to an exit code via reportCorpusOrTargetError.
func loadCorpus(ctx context.Context, projectRoot string) (*corpus.Corpus, error) {
	fetcher := location.New()
	v := validator.New()
	return corpus.Load(ctx, fetcher, v, projectRoot)
}

// buildScheduler assembles the host and container runtimes and wires them
// into a Scheduler bound to c. The container runtime is always registered;
// whether a docker binary is on PATH is only discovered when a container
// executor is first prepared.
func buildScheduler(c *corpus.Corpus, projectRoot string, cfg *config.Runtime, out *output.Output) *scheduler.Scheduler {
	scratchRoot := filepath.Join(projectRoot, ".dl", "scratch")

	runtimes := map[string]executor.Runtime{
		"host": &executor.Host{ScratchRoot: scratchRoot},
		"container": &executor.Container{
			Engine:      dockercli.New(""),
			ProjectRoot: projectRoot,
			ScratchRoot: scratchRoot,
		},
	}

	sched := scheduler.New(c, runtimes, c.Helpers, c, cfg.WorkerCount, out, !cfg.NoColor && output.ColorEnabled())
	if output.IsTTY() {
		sched.Status = output.NewStatusLine(os.Stderr)
	}
	return sched
}

func runExec(ctx context.Context, ctrl *lifecycle.Controller, projectRoot string, cfg *config.Runtime, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "dl: exec requires a task name")
		return ExitGeneralError
	}

	path, extra := splitPassthrough(args)

	c, err := loadCorpus(ctx, projectRoot)
	if err != nil {
		return reportCorpusOrTargetError(err)
	}

	plan, err := graph.Resolve(c, path)
	if err != nil {
		return reportCorpusOrTargetError(err)
	}
	if len(extra) > 0 && plan.Root.Kind == graph.NodeLeaf {
		plan.Root.Args = append(append([]string{}, plan.Root.Args...), extra...)
	}

	return runPlan(ctx, ctrl, c, projectRoot, cfg, plan)
}

func runPreset(ctx context.Context, ctrl *lifecycle.Controller, projectRoot string, cfg *config.Runtime, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "dl: run requires exactly one preset name")
		return ExitGeneralError
	}

	c, err := loadCorpus(ctx, projectRoot)
	if err != nil {
		return reportCorpusOrTargetError(err)
	}

	plan, err := graph.ResolvePreset(c, args[0])
	if err != nil {
		return reportCorpusOrTargetError(err)
	}

	return runPlan(ctx, ctrl, c, projectRoot, cfg, plan)
}

func runPlan(ctx context.Context, ctrl *lifecycle.Controller, c *corpus.Corpus, projectRoot string, cfg *config.Runtime, plan *graph.Plan) int {
	out := output.Std()
	sched := buildScheduler(c, projectRoot, cfg, out)

	err := sched.Run(ctx, plan)
	if err == nil {
		return ExitOK
	}

	var failure *dlerrors.TaskFailure
	if errors.As(err, &failure) {
		fmt.Fprintf(out.Stderr, "dl: %v\n", err)
		return failure.ExitCode
	}
	var cancelled *dlerrors.Cancelled
	if errors.As(err, &cancelled) || ctrl.Cancelled() {
		return ExitCancelled
	}

	fmt.Fprintf(out.Stderr, "dl: %v\n", err)
	return ExitGeneralError
}

func runList(ctx context.Context, projectRoot string, args []string) int {
	c, err := loadCorpus(ctx, projectRoot)
	if err != nil {
		return reportCorpusOrTargetError(err)
	}
	if err := preset.List(os.Stdout, c, args, output.IsTTY()); err != nil {
		return reportCorpusOrTargetError(err)
	}
	return ExitOK
}

// runClean removes the project's scratch workspace directory and any
// dangling dl-prefixed containers left over from a prior run that did not
// tear down cleanly (a crash, a kill -9), per SPEC_FULL.md §2.3.
func runClean(ctx context.Context, projectRoot string, cfg *config.Runtime) int {
	scratchRoot := filepath.Join(projectRoot, ".dl", "scratch")
	if err := os.RemoveAll(scratchRoot); err != nil {
		fmt.Fprintf(os.Stderr, "dl: clean scratch: %v\n", err)
		return ExitGeneralError
	}

	engine := dockercli.New("")
	ids, err := engine.ListByPrefix(ctx, "dl-")
	if err != nil {
		// docker may simply not be installed; that is not a clean failure.
		fmt.Fprintln(os.Stderr, "dl: skipping container cleanup:", err)
		return ExitOK
	}
	for _, id := range ids {
		_ = engine.Stop(ctx, id, 1)
		_ = engine.Remove(ctx, id)
	}
	return ExitOK
}

func reportCorpusOrTargetError(err error) int {
	var ce *dlerrors.CorpusError
	if errors.As(err, &ce) {
		fmt.Fprintf(os.Stderr, "dl: %v\n", err)
		return ExitCorpusError
	}
	var pe *dlerrors.PlanError
	if errors.As(err, &pe) {
		fmt.Fprintf(os.Stderr, "dl: %v\n", err)
		return ExitUnknownTarget
	}
	fmt.Fprintf(os.Stderr, "dl: %v\n", err)
	return ExitGeneralError
}

// splitPassthrough separates the task/option path from a trailing `--
// ARGS...` passthrough segment.
func splitPassthrough(args []string) (path, extra []string) {
	for i, a := range args {
		if a == "--" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

