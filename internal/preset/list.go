// Package preset resolves preset tag sets (complementing graph.ResolvePreset
// with the name-table lookup callers need) and renders the task tree for
// the `list` command, per SPEC_FULL.md §4.G.
package preset

import (
	"fmt"
	"io"
	"sort"

	"github.com/m1gwings/treedrawer/tree"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/diag"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/schema"
)

// List renders the public task rooted at path (or every top-level public
// task when path is empty) to w. When tty is true the tree is drawn with
// connecting boxes (treedrawer); otherwise it falls back to plain indented
// lines, since treedrawer's box-drawing glyphs only make sense on a real
// terminal (SPEC_FULL.md §4.G: "a presentation nicety, never load-bearing").
func List(w io.Writer, c *corpus.Corpus, path []string, tty bool) error {
	if len(path) == 0 {
		return listRoots(w, c, tty)
	}

	name := path[0]
	t, ok := c.Tasks[name]
	if !ok {
		return &dlerrors.PlanError{Kind: "unknown-task", Target: name, Suggestion: suggestTask(c, name)}
	}
	if t.Internal {
		return &dlerrors.PlanError{Kind: "internal-task", Target: name}
	}

	if tty {
		root := tree.NewTree(tree.NodeString(label(t)))
		if err := addChildren(root, c, t, path[1:]); err != nil {
			return err
		}
		fmt.Fprintln(w, root)
		return nil
	}
	return listPlain(w, c, t, path[1:], 0)
}

func listRoots(w io.Writer, c *corpus.Corpus, tty bool) error {
	names := publicTaskNames(c)
	if tty {
		root := tree.NewTree(tree.NodeString("dl"))
		for _, name := range names {
			t := c.Tasks[name]
			child, err := root.AddChild(tree.NodeString(label(t)))
			if err != nil {
				return err
			}
			if t.Kind == schema.KindOneof {
				if err := addOneofOptions(child, c, t); err != nil {
					return err
				}
			}
		}
		fmt.Fprintln(w, root)
		return nil
	}
	for _, name := range names {
		t := c.Tasks[name]
		fmt.Fprintln(w, label(t))
		if t.Kind == schema.KindOneof {
			for _, o := range t.Options {
				fmt.Fprintf(w, "  %s\n", o.Name)
			}
		}
	}
	return nil
}

func publicTaskNames(c *corpus.Corpus) []string {
	var names []string
	for name, t := range c.Tasks {
		if !t.Internal {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func addChildren(node *tree.Tree, c *corpus.Corpus, t *schema.TaskSpec, rest []string) error {
	if t.Kind != schema.KindOneof {
		return nil
	}
	if len(rest) == 0 {
		return addOneofOptions(node, c, t)
	}
	optName := rest[0]
	for _, o := range t.Options {
		if o.Name == optName {
			next, ok := c.Tasks[o.Task]
			if !ok {
				return &dlerrors.PlanError{Kind: "unknown-task", Target: o.Task}
			}
			child, err := node.AddChild(tree.NodeString(label(next)))
			if err != nil {
				return err
			}
			return addChildren(child, c, next, rest[1:])
		}
	}
	return &dlerrors.PlanError{Kind: "unknown-option", Target: optName, Suggestion: suggestOption(t, optName)}
}

func addOneofOptions(node *tree.Tree, c *corpus.Corpus, t *schema.TaskSpec) error {
	for _, o := range t.Options {
		if _, err := node.AddChild(tree.NodeString(o.Name)); err != nil {
			return err
		}
	}
	return nil
}

func listPlain(w io.Writer, c *corpus.Corpus, t *schema.TaskSpec, rest []string, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Fprintf(w, "%s%s\n", indent, label(t))
	if t.Kind != schema.KindOneof {
		return nil
	}
	if len(rest) > 0 {
		optName := rest[0]
		for _, o := range t.Options {
			if o.Name == optName {
				next, ok := c.Tasks[o.Task]
				if !ok {
					return &dlerrors.PlanError{Kind: "unknown-task", Target: o.Task}
				}
				return listPlain(w, c, next, rest[1:], depth+1)
			}
		}
		return &dlerrors.PlanError{Kind: "unknown-option", Target: optName, Suggestion: suggestOption(t, optName)}
	}
	for _, o := range t.Options {
		fmt.Fprintf(w, "%s  %s\n", indent, o.Name)
	}
	return nil
}

func label(t *schema.TaskSpec) string {
	if t.Description != "" {
		return fmt.Sprintf("%s — %s", t.Name, t.Description)
	}
	return t.Name
}

func suggestTask(c *corpus.Corpus, target string) string {
	return diag.Suggest(target, publicTaskNames(c))
}

func suggestOption(t *schema.TaskSpec, target string) string {
	names := make([]string, 0, len(t.Options))
	for _, o := range t.Options {
		names = append(names, o.Name)
	}
	return diag.Suggest(target, names)
}
