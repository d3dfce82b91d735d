// Package corpus loads and validates the full set of tasks, executors, and
// helpers a project declares, producing the name tables the graph package
// resolves plans against.
package corpus

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/location"
	"github.com/devloop-run/dl/internal/schema"
)

// Corpus holds the fully loaded, validated task/executor/helper tables for
// one project.
type Corpus struct {
	ProjectRoot     string
	Tasks           map[string]*schema.TaskSpec
	Executors       map[string]*schema.ExecutorSpec
	DefaultExecutor *schema.ExecutorSpec
	Helpers         []location.Resolved // ordered by declaration; see SPEC_FULL.md "Helper sourcing order"
	Presets         map[string]*schema.Preset
	EnsureDirs      []string
}

// Resolve returns the on-disk script path for a command task, relative to
// the project root. It implements scheduler.ScriptResolver.
func (c *Corpus) Resolve(taskName string) (string, error) {
	t, ok := c.Tasks[taskName]
	if !ok {
		return "", fmt.Errorf("corpus: no such task %q", taskName)
	}
	if t.Location == nil {
		return "", fmt.Errorf("corpus: task %q has no location", taskName)
	}
	if t.Location.Http != "" {
		return "", fmt.Errorf("corpus: task %q has an http location, not executable directly", taskName)
	}
	path := t.Location.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.ProjectRoot, path)
	}
	return path, nil
}

// Validator is satisfied by *validator.Validate; kept as an interface so
// loader tests do not need the real validator package.
type Validator interface {
	Struct(s any) error
}

// Load reads projectRoot/.dl/config.yml, expands every *_locations entry
// via fetcher, decodes and validates each file, and assembles the Corpus.
func Load(ctx context.Context, fetcher *location.Fetcher, v Validator, projectRoot string) (*Corpus, error) {
	dlDir := filepath.Join(projectRoot, ".dl")
	cfgResults, err := fetcher.Fetch(ctx, dlDir, location.Location{Kind: location.KindPath, At: "config.yml"})
	if err != nil {
		return nil, fmt.Errorf("load top-level config: %w", err)
	}

	var top schema.TopLevelConfig
	if err := decodeYAML(cfgResults[0].Path, cfgResults[0].Body, &top); err != nil {
		return nil, err
	}

	c := &Corpus{
		ProjectRoot: projectRoot,
		Tasks:       make(map[string]*schema.TaskSpec),
		Executors:   make(map[string]*schema.ExecutorSpec),
		Presets:     make(map[string]*schema.Preset),
		EnsureDirs:  top.EnsureDirectories,
	}
	if top.DefaultExecutor != nil {
		if err := v.Struct(top.DefaultExecutor); err != nil {
			return nil, &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "default_executor", Err: err}
		}
		c.DefaultExecutor = top.DefaultExecutor
	}
	for i := range top.Presets {
		p := &top.Presets[i]
		if v != nil {
			if err := v.Struct(p); err != nil {
				return nil, &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "preset " + p.Name, Err: err}
			}
		}
		if _, dup := c.Presets[p.Name]; dup {
			return nil, &dlerrors.CorpusError{Kind: "duplicate", Detail: "preset " + p.Name}
		}
		c.Presets[p.Name] = p
	}

	if err := loadExecutors(ctx, fetcher, v, dlDir, top.ExecutorLocations, c); err != nil {
		return nil, err
	}
	if err := loadTasks(ctx, fetcher, v, dlDir, top.TaskLocations, c); err != nil {
		return nil, err
	}
	if err := loadHelpers(ctx, fetcher, dlDir, top.HelperLocations, c); err != nil {
		return nil, err
	}

	if err := validateInvariants(c); err != nil {
		return nil, err
	}
	return c, nil
}

func loadExecutors(ctx context.Context, fetcher *location.Fetcher, v Validator, dlDir string, locs []schema.LocationDoc, c *Corpus) error {
	for _, ld := range locs {
		loc := toLocation(ld)
		results, err := fetcher.Fetch(ctx, dlDir, loc)
		if err != nil {
			return fmt.Errorf("load executor locations: %w", err)
		}
		for _, r := range results {
			var file schema.ExecutorsFile
			if err := decodeYAML(r.Path, r.Body, &file); err != nil {
				return err
			}
			for i := range file.Executors {
				e := &file.Executors[i]
				if v != nil {
					if err := v.Struct(e); err != nil {
						return &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "executor " + e.Name, File: r.Path, Err: err}
					}
				}
				if e.Type == "container" && e.Container == nil {
					return &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "executor " + e.Name + ": container type without container params", File: r.Path}
				}
				if _, dup := c.Executors[e.Name]; dup {
					return &dlerrors.CorpusError{Kind: "duplicate", Detail: "executor " + e.Name, File: r.Path}
				}
				c.Executors[e.Name] = e
			}
		}
	}
	return nil
}

func loadTasks(ctx context.Context, fetcher *location.Fetcher, v Validator, dlDir string, locs []schema.LocationDoc, c *Corpus) error {
	for _, ld := range locs {
		loc := toLocation(ld)
		results, err := fetcher.Fetch(ctx, dlDir, loc)
		if err != nil {
			return fmt.Errorf("load task locations: %w", err)
		}
		for _, r := range results {
			var file schema.TasksFile
			if err := decodeYAML(r.Path, r.Body, &file); err != nil {
				return err
			}
			for i := range file.Tasks {
				t := &file.Tasks[i]
				if v != nil {
					if err := v.Struct(t); err != nil {
						return &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "task " + t.Name, File: r.Path, Err: err}
					}
				}
				if err := validateTaskShape(t); err != nil {
					return &dlerrors.CorpusError{Kind: "type-mismatch", Detail: "task " + t.Name, File: r.Path, Err: err}
				}
				if _, dup := c.Tasks[t.Name]; dup {
					return &dlerrors.CorpusError{Kind: "duplicate", Detail: "task " + t.Name, File: r.Path}
				}
				c.Tasks[t.Name] = t
			}
		}
	}
	return nil
}

func loadHelpers(ctx context.Context, fetcher *location.Fetcher, dlDir string, locs []schema.LocationDoc, c *Corpus) error {
	for _, ld := range locs {
		loc := toLocation(ld)
		results, err := fetcher.Fetch(ctx, dlDir, loc)
		if err != nil {
			return fmt.Errorf("load helper locations: %w", err)
		}
		c.Helpers = append(c.Helpers, results...)
	}
	return nil
}

// validateTaskShape enforces the per-kind field invariants of §3 that a
// struct tag alone cannot express (required_without-style cross-field
// rules keyed on Kind).
func validateTaskShape(t *schema.TaskSpec) error {
	switch t.Kind {
	case schema.KindCommand:
		if t.Location == nil {
			return fmt.Errorf("command task %q requires location", t.Name)
		}
		if len(t.Steps) > 0 || len(t.Options) > 0 {
			return fmt.Errorf("command task %q must not declare steps or options", t.Name)
		}
	case schema.KindOneof:
		if len(t.Steps) > 0 {
			return fmt.Errorf("oneof task %q must not declare steps", t.Name)
		}
		// An empty Options list is loadable; see SPEC_FULL.md §9 open question.
	case schema.KindPipeline, schema.KindParallelPipeline:
		if len(t.Steps) == 0 {
			return fmt.Errorf("%s task %q requires at least one step", t.Kind, t.Name)
		}
		if len(t.Options) > 0 {
			return fmt.Errorf("%s task %q must not declare options", t.Kind, t.Name)
		}
	default:
		return fmt.Errorf("task %q has unknown kind %q", t.Name, t.Kind)
	}
	return nil
}

// validateInvariants checks the corpus-wide invariants of §3/§8: every
// internal task reachable from a public one, and the task-reference graph
// acyclic.
func validateInvariants(c *Corpus) error {
	referenced := make(map[string]bool)
	for _, t := range c.Tasks {
		for _, s := range t.Steps {
			referenced[s.Task] = true
		}
		for _, o := range t.Options {
			referenced[o.Task] = true
		}
	}
	for name, t := range c.Tasks {
		if t.Internal && !referenced[name] {
			return &dlerrors.CorpusError{Kind: "unused-internal", Detail: "task " + name + " is internal but never referenced"}
		}
		for _, s := range t.Steps {
			if _, ok := c.Tasks[s.Task]; !ok {
				return &dlerrors.CorpusError{Kind: "unknown-reference", Detail: fmt.Sprintf("task %q step %q references unknown task %q", name, s.Name, s.Task)}
			}
		}
		for _, o := range t.Options {
			if _, ok := c.Tasks[o.Task]; !ok {
				return &dlerrors.CorpusError{Kind: "unknown-reference", Detail: fmt.Sprintf("task %q option %q references unknown task %q", name, o.Name, o.Task)}
			}
		}
	}
	return detectCycles(c)
}

func detectCycles(c *Corpus) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(c.Tasks))

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &dlerrors.CorpusError{Kind: "cycle", Detail: fmt.Sprintf("cycle through task %q: %v", name, append(stack, name))}
		}
		state[name] = visiting
		t := c.Tasks[name]
		if t != nil {
			for _, s := range t.Steps {
				if err := visit(s.Task, append(stack, name)); err != nil {
					return err
				}
			}
			for _, o := range t.Options {
				if err := visit(o.Task, append(stack, name)); err != nil {
					return err
				}
			}
		}
		state[name] = done
		return nil
	}

	for name := range c.Tasks {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

func toLocation(ld schema.LocationDoc) location.Location {
	if ld.Http != "" {
		return location.Location{Kind: location.KindHTTP, At: ld.Http}
	}
	return location.Location{Kind: location.KindPath, At: ld.Path, Recurse: ld.Recurse}
}

// decodeYAML wraps yaml.v3 decode errors with file context, restoring the
// original implementation's file/line-annotated corpus errors.
func decodeYAML(path string, body []byte, out any) error {
	if err := yaml.Unmarshal(body, out); err != nil {
		return &dlerrors.CorpusError{Kind: "yaml", Detail: "decode", File: path, Line: yamlErrorLine(err), Err: err}
	}
	return nil
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

// yamlErrorLine extracts the line number yaml.v3 embeds in its error
// message text ("line N: ..."), for both *yaml.TypeError (unmarshal type
// mismatches) and the plain syntax errors Unmarshal otherwise returns.
// Returns 0 when the message carries no line reference.
func yamlErrorLine(err error) int {
	msg := err.Error()
	if te, ok := err.(*yaml.TypeError); ok && len(te.Errors) > 0 {
		msg = te.Errors[0]
	}
	m := yamlLineRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err2 := strconv.Atoi(m[1])
	if err2 != nil {
		return 0
	}
	return n
}
