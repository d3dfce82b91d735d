package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devloop-run/dl/internal/containerengine"
	"github.com/devloop-run/dl/internal/location"
	"github.com/devloop-run/dl/internal/schema"
)

// fakeEngine is a minimal containerengine.Engine double that records calls
// instead of shelling out to a real container runtime.
type fakeEngine struct {
	pulled  []string
	created containerengine.CreateOpts
	started string
	stopped string
	removed string
	execArgv [][]string
	execExit int
}

func (f *fakeEngine) Pull(ctx context.Context, image string) error {
	f.pulled = append(f.pulled, image)
	return nil
}

func (f *fakeEngine) Create(ctx context.Context, opts containerengine.CreateOpts) (string, error) {
	f.created = opts
	return "container-123", nil
}

func (f *fakeEngine) Start(ctx context.Context, containerID string) error {
	f.started = containerID
	return nil
}

func (f *fakeEngine) Exec(ctx context.Context, containerID string, asRoot bool, argv []string, stdout, stderr io.Writer) (int, error) {
	f.execArgv = append(f.execArgv, argv)
	fmt.Fprintf(stdout, "exec %v\n", argv)
	return f.execExit, nil
}

func (f *fakeEngine) Stop(ctx context.Context, containerID string, graceSeconds int) error {
	f.stopped = containerID
	return nil
}

func (f *fakeEngine) Remove(ctx context.Context, containerID string) error {
	f.removed = containerID
	return nil
}

func (f *fakeEngine) CreateNetwork(ctx context.Context, name string) error { return nil }
func (f *fakeEngine) RemoveNetwork(ctx context.Context, name string) error { return nil }
func (f *fakeEngine) Inspect(ctx context.Context, containerID string) (bool, error) {
	return true, nil
}

func newContainerInst() *Instance {
	return New(&schema.ExecutorSpec{
		Name: "py",
		Type: "container",
		Container: &schema.ContainerParams{
			Image:      "python:3.12",
			NamePrefix: "py-",
			User:       "1000:1000",
		},
	})
}

func TestContainerPrepareCreatesAndStartsContainer(t *testing.T) {
	engine := &fakeEngine{}
	projectRoot := t.TempDir()
	c := &Container{Engine: engine, ProjectRoot: projectRoot, ScratchRoot: t.TempDir()}

	inst := newContainerInst()
	if err := c.Prepare(context.Background(), inst, nil); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(engine.pulled) != 1 || engine.pulled[0] != "python:3.12" {
		t.Errorf("pulled = %v, want [python:3.12]", engine.pulled)
	}
	if engine.started != "container-123" {
		t.Errorf("started = %q, want container-123", engine.started)
	}
	if inst.ContainerID != "container-123" {
		t.Errorf("inst.ContainerID = %q, want container-123", inst.ContainerID)
	}
	if inst.State() != StateReady {
		t.Errorf("state = %s, want ready", inst.State())
	}
	if len(engine.created.Mounts) == 0 || engine.created.Mounts[0].Container != MountPoint {
		t.Errorf("expected project root mounted at %s, got %v", MountPoint, engine.created.Mounts)
	}
}

func TestContainerExecuteRunsThroughEngine(t *testing.T) {
	engine := &fakeEngine{execExit: 0}
	projectRoot := t.TempDir()
	c := &Container{Engine: engine, ProjectRoot: projectRoot, ScratchRoot: t.TempDir()}

	inst := newContainerInst()
	if err := c.Prepare(context.Background(), inst, nil); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code, err := c.Execute(context.Background(), inst, projectRoot+"/scripts/build.sh", []string{"--release"}, nil, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if len(engine.execArgv) != 1 {
		t.Fatalf("expected exactly one Exec call, got %d", len(engine.execArgv))
	}
	if inst.State() != StateReady {
		t.Errorf("state after Execute = %s, want ready", inst.State())
	}
}

func TestContainerTearDownStopsAndRemoves(t *testing.T) {
	engine := &fakeEngine{}
	projectRoot := t.TempDir()
	c := &Container{Engine: engine, ProjectRoot: projectRoot, ScratchRoot: t.TempDir()}

	inst := newContainerInst()
	if err := c.Prepare(context.Background(), inst, nil); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := c.TearDown(context.Background(), inst); err != nil {
		t.Fatalf("TearDown: %v", err)
	}
	if engine.stopped != "container-123" || engine.removed != "container-123" {
		t.Errorf("expected container-123 stopped and removed, got stopped=%q removed=%q", engine.stopped, engine.removed)
	}
	if inst.State() != StateTornDown {
		t.Errorf("state = %s, want torn_down", inst.State())
	}
}

func TestContainerPrepareMaterializesHelperPreambleUnderMountPoint(t *testing.T) {
	engine := &fakeEngine{}
	projectRoot := t.TempDir()
	c := &Container{Engine: engine, ProjectRoot: projectRoot, ScratchRoot: filepath.Join(projectRoot, ".dl", "scratch")}

	inst := newContainerInst()
	helpers := []location.Resolved{
		{Path: projectRoot + "/helpers/util.sh", Body: []byte("export UTIL=1\n")},
	}
	if err := c.Prepare(context.Background(), inst, helpers); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if inst.WorkDir == "" {
		t.Fatal("expected WorkDir to be set")
	}
	preamble, err := os.ReadFile(filepath.Join(inst.WorkDir, "preamble.sh"))
	if err != nil {
		t.Fatalf("read preamble: %v", err)
	}
	want := filepath.Join(MountPoint, ".dl", "scratch", inst.ID.String(), "util.sh")
	if !strings.Contains(string(preamble), want) {
		t.Errorf("preamble = %q, want it to source %s", preamble, want)
	}
}
