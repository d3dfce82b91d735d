package graph

import (
	"testing"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/schema"
)

func must(loc string) *schema.LocationDoc {
	return &schema.LocationDoc{Path: loc}
}

func TestResolveCommandTask(t *testing.T) {
	c := &corpus.Corpus{Tasks: map[string]*schema.TaskSpec{
		"build": {Name: "build", Kind: schema.KindCommand, Location: must("build.sh")},
	}}

	plan, err := Resolve(c, []string{"build"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Root.Kind != NodeLeaf {
		t.Fatalf("want leaf node, got %v", plan.Root.Kind)
	}
	if plan.Root.Task.Name != "build" {
		t.Errorf("want task build, got %s", plan.Root.Task.Name)
	}
}

func TestResolveUnknownTaskSuggestion(t *testing.T) {
	c := &corpus.Corpus{Tasks: map[string]*schema.TaskSpec{
		"test": {Name: "test", Kind: schema.KindCommand, Location: must("t.sh")},
	}}

	_, err := Resolve(c, []string{"tets"})
	if err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestResolveInternalTaskRejected(t *testing.T) {
	c := &corpus.Corpus{Tasks: map[string]*schema.TaskSpec{
		"secret": {Name: "secret", Kind: schema.KindCommand, Location: must("s.sh"), Internal: true},
	}}

	_, err := Resolve(c, []string{"secret"})
	if err == nil {
		t.Fatal("expected error running internal task directly")
	}
}

func TestResolveOneofArgComposition(t *testing.T) {
	c := &corpus.Corpus{Tasks: map[string]*schema.TaskSpec{
		"deploy": {
			Name: "deploy", Kind: schema.KindOneof,
			Options: []schema.Option{
				{Name: "staging", Task: "deploy-impl", Args: []string{"--env", "staging"}},
			},
		},
		"deploy-impl": {Name: "deploy-impl", Kind: schema.KindCommand, Location: must("deploy.sh")},
	}}

	plan, err := Resolve(c, []string{"deploy", "staging", "--verbose"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"--env", "staging", "--verbose"}
	if len(plan.Root.Args) != len(want) {
		t.Fatalf("args = %v, want %v", plan.Root.Args, want)
	}
	for i := range want {
		if plan.Root.Args[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q", i, plan.Root.Args[i], want[i])
		}
	}
}

func TestResolvePipelineOrder(t *testing.T) {
	c := &corpus.Corpus{Tasks: map[string]*schema.TaskSpec{
		"ci": {
			Name: "ci", Kind: schema.KindPipeline,
			Steps: []schema.Step{
				{Name: "s1", Task: "a"},
				{Name: "s2", Task: "b"},
			},
		},
		"a": {Name: "a", Kind: schema.KindCommand, Location: must("a.sh")},
		"b": {Name: "b", Kind: schema.KindCommand, Location: must("b.sh")},
	}}

	plan, err := Resolve(c, []string{"ci"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Root.Kind != NodeSeq || len(plan.Root.Children) != 2 {
		t.Fatalf("want 2-child seq node, got %+v", plan.Root)
	}
	if plan.Root.Children[0].Task.Name != "a" || plan.Root.Children[1].Task.Name != "b" {
		t.Errorf("steps out of order: %+v", plan.Root.Children)
	}
}

func TestResolvePresetDeterministicOrder(t *testing.T) {
	c := &corpus.Corpus{
		Tasks: map[string]*schema.TaskSpec{
			"zeta":  {Name: "zeta", Kind: schema.KindCommand, Location: must("z.sh"), Tags: []string{"ci"}},
			"alpha": {Name: "alpha", Kind: schema.KindCommand, Location: must("a.sh"), Tags: []string{"ci"}},
		},
		Presets: map[string]*schema.Preset{
			"ci": {Name: "ci", Tags: []string{"ci"}},
		},
	}

	plan, err := ResolvePreset(c, "ci")
	if err != nil {
		t.Fatalf("ResolvePreset: %v", err)
	}
	if len(plan.Root.Children) != 2 {
		t.Fatalf("want 2 children, got %d", len(plan.Root.Children))
	}
	if plan.Root.Children[0].Task.Name != "alpha" || plan.Root.Children[1].Task.Name != "zeta" {
		t.Errorf("preset tasks not in sorted order: %+v", plan.Root.Children)
	}
}
