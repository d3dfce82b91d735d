package selector

import (
	"testing"

	"github.com/devloop-run/dl/internal/corpus"
	"github.com/devloop-run/dl/internal/schema"
)

func TestSelectSatisfiesExactName(t *testing.T) {
	c := &corpus.Corpus{Executors: map[string]*schema.ExecutorSpec{
		"node": {Name: "node", Type: "host", Provides: []schema.ProvideEntry{{Name: "node"}}},
	}}
	task := &schema.TaskSpec{Name: "t", Needs: []schema.NeedEntry{{Name: "node"}}}

	got, err := Select(c, task, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name != "node" {
		t.Errorf("got %s, want node", got.Name)
	}
}

func TestSelectSemverRange(t *testing.T) {
	c := &corpus.Corpus{Executors: map[string]*schema.ExecutorSpec{
		"node18": {Name: "node18", Type: "container", Provides: []schema.ProvideEntry{{Name: "node", Version: "18.4.0"}}},
	}}
	task := &schema.TaskSpec{Name: "t", Needs: []schema.NeedEntry{{Name: "node", Matcher: ">=18.0.0"}}}

	if _, err := Select(c, task, nil); err != nil {
		t.Fatalf("Select: %v", err)
	}

	taskTooNew := &schema.TaskSpec{Name: "t2", Needs: []schema.NeedEntry{{Name: "node", Matcher: ">=20.0.0"}}}
	if _, err := Select(c, taskTooNew, nil); err == nil {
		t.Fatal("expected no executor to satisfy >=20.0.0")
	}
}

func TestSelectNoCandidateFails(t *testing.T) {
	c := &corpus.Corpus{Executors: map[string]*schema.ExecutorSpec{}}
	task := &schema.TaskSpec{Name: "t", Needs: []schema.NeedEntry{{Name: "rust"}}}

	if _, err := Select(c, task, nil); err == nil {
		t.Fatal("expected error with no candidates")
	}
}

type fakeRunning struct{ names map[string]bool }

func (f fakeRunning) IsRunning(name string) bool { return f.names[name] }

func TestSelectPrefersRunningInstance(t *testing.T) {
	c := &corpus.Corpus{Executors: map[string]*schema.ExecutorSpec{
		"a": {Name: "a", Type: "container", Provides: []schema.ProvideEntry{{Name: "x"}}},
		"b": {Name: "b", Type: "container", Provides: []schema.ProvideEntry{{Name: "x"}}},
	}}
	task := &schema.TaskSpec{Name: "t", Needs: []schema.NeedEntry{{Name: "x"}}}

	got, err := Select(c, task, fakeRunning{names: map[string]bool{"b": true}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got.Name != "b" {
		t.Errorf("got %s, want b (already running)", got.Name)
	}
}

func TestSelectCustomExecutorVerbatim(t *testing.T) {
	custom := &schema.ExecutorSpec{Name: "custom", Type: "host"}
	task := &schema.TaskSpec{Name: "t", CustomExecutor: custom}

	got, err := Select(&corpus.Corpus{}, task, nil)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if got != custom {
		t.Error("expected custom executor to be returned verbatim")
	}
}
