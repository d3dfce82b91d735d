package corpus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/location"
)

// fakeValidator satisfies Validator without pulling in go-playground/validator
// for unit tests that don't need real struct-tag enforcement.
type fakeValidator struct{}

func (fakeValidator) Struct(s any) error { return nil }

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".dl"), 0o755); err != nil {
		t.Fatalf("mkdir .dl: %v", err)
	}
	for rel, body := range files {
		p := filepath.Join(root, ".dl", rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func TestLoadSimpleCorpus(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: build
    kind: command
    location:
      path: scripts/build.sh
`,
	})

	c, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := c.Tasks["build"]; !ok {
		t.Fatalf("expected task %q to be loaded, got %v", "build", c.Tasks)
	}
}

func TestLoadDuplicateTaskFails(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: build
    kind: command
    location:
      path: a.sh
  - name: build
    kind: command
    location:
      path: b.sh
`,
	})

	_, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err == nil {
		t.Fatal("expected duplicate task name to fail")
	}
}

func TestLoadUnknownReferenceFails(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: ci
    kind: pipeline
    steps:
      - name: step1
        task: does-not-exist
`,
	})

	_, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err == nil {
		t.Fatal("expected unknown reference to fail")
	}
}

func TestLoadUnusedInternalFails(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: helper
    kind: command
    internal: true
    location:
      path: a.sh
`,
	})

	_, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err == nil {
		t.Fatal("expected unused internal task to fail")
	}
}

func TestLoadYAMLTypeErrorReportsLine(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: build
    kind: [not-a-string]
`,
	})

	_, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err == nil {
		t.Fatal("expected a yaml decode error")
	}
	var ce *dlerrors.CorpusError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *dlerrors.CorpusError, got %T: %v", err, err)
	}
	if ce.Line <= 0 {
		t.Errorf("Line = %d, want a positive line number from the yaml decoder", ce.Line)
	}
}

func TestLoadCycleFails(t *testing.T) {
	root := writeProject(t, map[string]string{
		"config.yml": "task_locations:\n  - path: dl-tasks.yml\n",
		"dl-tasks.yml": `
tasks:
  - name: a
    kind: pipeline
    steps:
      - name: s
        task: b
  - name: b
    kind: pipeline
    steps:
      - name: s
        task: a
`,
	})

	_, err := Load(context.Background(), location.New(), fakeValidator{}, root)
	if err == nil {
		t.Fatal("expected cycle to fail")
	}
}
