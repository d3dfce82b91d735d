// Package graph resolves a user command against a loaded corpus into a
// concrete ExecutionPlan: a tree of Leaf invocations with fully composed
// argument vectors, per SPEC_FULL.md §4.C.
package graph

import (
	"fmt"
	"sort"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/diag"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/schema"
)

// NodeKind discriminates ExecutionPlan nodes.
type NodeKind int

const (
	NodeSeq NodeKind = iota
	NodePar
	NodeLeaf
)

// Node is one element of a resolved ExecutionPlan.
type Node struct {
	Kind     NodeKind
	Children []*Node   // Seq, Par
	Task     *schema.TaskSpec // Leaf
	Args     []string  // Leaf: fully composed argument vector
}

// Plan is a resolved ExecutionPlan: a single rooted node.
type Plan struct {
	Root *Node
}

// Resolve expands `name` (an `exec` target, with path the remaining oneof
// selections) against the corpus into a Plan. The leading path element is
// the task name; subsequent elements choose oneof options encountered
// during expansion, and any elements left once a command task is reached
// are appended to that leaf's arguments.
func Resolve(c *corpus.Corpus, path []string) (*Plan, error) {
	if len(path) == 0 {
		return nil, &dlerrors.PlanError{Kind: "unknown-task", Target: ""}
	}
	name := path[0]
	rest := path[1:]

	t, ok := c.Tasks[name]
	if !ok {
		return nil, &dlerrors.PlanError{Kind: "unknown-task", Target: name, Suggestion: suggestTask(c, name)}
	}
	if t.Internal {
		return nil, &dlerrors.PlanError{Kind: "internal-task", Target: name}
	}

	node, _, err := expand(c, t, nil, rest)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: node}, nil
}

// ResolvePreset expands a `run` target: a preset name resolving to a
// Par over its tagged, public, lexicographically-sorted task set.
func ResolvePreset(c *corpus.Corpus, presetName string) (*Plan, error) {
	p, ok := c.Presets[presetName]
	if !ok {
		return nil, &dlerrors.PlanError{Kind: "unknown-task", Target: presetName, Suggestion: suggestPreset(c, presetName)}
	}

	tagSet := make(map[string]bool, len(p.Tags))
	for _, tag := range p.Tags {
		tagSet[tag] = true
	}

	var names []string
	for name, t := range c.Tasks {
		if t.Internal {
			continue
		}
		for _, tag := range t.Tags {
			if tagSet[tag] {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)

	children := make([]*Node, 0, len(names))
	for _, name := range names {
		n, _, err := expand(c, c.Tasks[name], nil, nil)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return &Plan{Root: &Node{Kind: NodePar, Children: children}}, nil
}

// expand turns a TaskSpec (with already-inherited args from its caller)
// into a plan Node, consuming pathRest for oneof selections. It returns the
// node and whatever of pathRest it did not consume: a command leaf takes
// the remaining elements as trailing arguments, while pipeline and
// parallel-pipeline nodes consume none of them.
func expand(c *corpus.Corpus, t *schema.TaskSpec, inherited []string, pathRest []string) (*Node, []string, error) {
	switch t.Kind {
	case schema.KindCommand:
		args := append(append([]string{}, inherited...), pathRest...)
		return &Node{Kind: NodeLeaf, Task: t, Args: args}, nil, nil

	case schema.KindOneof:
		if len(pathRest) == 0 {
			return nil, nil, &dlerrors.PlanError{Kind: "unknown-option", Target: ""}
		}
		optName := pathRest[0]
		rest := pathRest[1:]
		var opt *schema.Option
		for i := range t.Options {
			if t.Options[i].Name == optName {
				opt = &t.Options[i]
				break
			}
		}
		if opt == nil {
			return nil, nil, &dlerrors.PlanError{Kind: "unknown-option", Target: optName, Suggestion: suggestOption(t, optName)}
		}
		next, ok := c.Tasks[opt.Task]
		if !ok {
			return nil, nil, &dlerrors.PlanError{Kind: "unknown-task", Target: opt.Task}
		}
		// static args of the option precede args inherited from the caller.
		args := append(append([]string{}, opt.Args...), inherited...)
		return expand(c, next, args, rest)

	case schema.KindPipeline:
		children := make([]*Node, 0, len(t.Steps))
		for _, s := range t.Steps {
			next, ok := c.Tasks[s.Task]
			if !ok {
				return nil, nil, &dlerrors.PlanError{Kind: "unknown-task", Target: s.Task}
			}
			args := append(append([]string{}, s.Args...), inherited...)
			child, _, err := expand(c, next, args, nil)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, child)
		}
		return &Node{Kind: NodeSeq, Children: children}, pathRest, nil

	case schema.KindParallelPipeline:
		children := make([]*Node, 0, len(t.Steps))
		for _, s := range t.Steps {
			next, ok := c.Tasks[s.Task]
			if !ok {
				return nil, nil, &dlerrors.PlanError{Kind: "unknown-task", Target: s.Task}
			}
			args := append(append([]string{}, s.Args...), inherited...)
			child, _, err := expand(c, next, args, nil)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, child)
		}
		return &Node{Kind: NodePar, Children: children}, pathRest, nil

	default:
		return nil, nil, fmt.Errorf("graph: unknown task kind %q", t.Kind)
	}
}

func suggestTask(c *corpus.Corpus, target string) string {
	names := make([]string, 0, len(c.Tasks))
	for name, t := range c.Tasks {
		if !t.Internal {
			names = append(names, name)
		}
	}
	return diag.Suggest(target, names)
}

func suggestPreset(c *corpus.Corpus, target string) string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	return diag.Suggest(target, names)
}

func suggestOption(t *schema.TaskSpec, target string) string {
	names := make([]string, 0, len(t.Options))
	for _, o := range t.Options {
		names = append(names, o.Name)
	}
	return diag.Suggest(target, names)
}
