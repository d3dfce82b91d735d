package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"

	"github.com/devloop-run/dl/internal/containerengine"
	"github.com/devloop-run/dl/internal/dlerrors"
	"github.com/devloop-run/dl/internal/location"
)

// MountPoint is the fixed in-container location the project root is bound
// to, so scripts see the same relative paths whether they run on the host
// or inside a container (SPEC_FULL.md §4.E "Workspace mapping").
const MountPoint = "/workspace"

// teardownGrace is how long Stop waits before the engine force-kills the
// long-lived foreground process.
const teardownGrace = 5

// Container runs scripts inside a long-lived container, reused across
// every leaf in one plan invocation that needs the same executor spec
// (SPEC_FULL.md §4.E "Long-lived container trick").
type Container struct {
	Engine      containerengine.Engine
	ProjectRoot string
	ScratchRoot string
}

func (c *Container) Prepare(ctx context.Context, inst *Instance, helpers []location.Resolved) error {
	if err := inst.transition(StatePrepared); err != nil {
		return err
	}
	params := inst.Spec.Container
	if params == nil {
		return inst.fail(fmt.Errorf("container executor %q missing container params", inst.Spec.Name))
	}

	if err := c.Engine.Pull(ctx, params.Image); err != nil {
		return inst.fail(&dlerrors.ExecutorError{Kind: "pull", Name: inst.Spec.Name, Err: err})
	}

	name := "dl-" + params.NamePrefix + inst.ShortID()
	mounts := []containerengine.Mount{{Host: c.ProjectRoot, Container: MountPoint}}
	for _, m := range params.ExtraMounts {
		host, container, err := splitMount(m)
		if err != nil {
			return inst.fail(err)
		}
		if err := os.MkdirAll(host, 0o755); err != nil {
			return inst.fail(&dlerrors.ExecutorError{Kind: "mount", Name: inst.Spec.Name, Err: err})
		}
		mounts = append(mounts, containerengine.Mount{Host: host, Container: container})
	}

	env := FilterEnv(params.ExportEnv)

	hostname := params.Hostname
	if hostname == "" {
		hostname = name
	}

	containerID, err := c.Engine.Create(ctx, containerengine.CreateOpts{
		Name:     name,
		Image:    params.Image,
		User:     params.User,
		Hostname: hostname,
		Mounts:   mounts,
		Env:      env,
		TCPPorts: params.TCPPortsToExpose,
		UDPPorts: params.UDPPortsToExpose,
		Network:  inst.Network,
		// A long-lived foreground process keeps the container alive between
		// `exec` calls within one plan invocation.
		Cmd: []string{"sh", "-c", "while true; do sleep 3600; done"},
	})
	if err != nil {
		return inst.fail(&dlerrors.ExecutorError{Kind: "start", Name: inst.Spec.Name, Err: err})
	}
	inst.ContainerID = containerID

	if err := c.Engine.Start(ctx, containerID); err != nil {
		return inst.fail(&dlerrors.ExecutorError{Kind: "start", Name: inst.Spec.Name, Err: err})
	}

	if params.ExperimentalPermissionHelper && runtimeIsLinux() {
		// Runs as a one-shot root `exec` inside the already-started
		// container, handing every mounted directory to the invoking user.
		owner := fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
		chown := []string{"chown", "-R", owner}
		for _, m := range mounts {
			chown = append(chown, m.Container)
		}
		if _, err := c.Engine.Exec(ctx, containerID, true, chown, io.Discard, io.Discard); err != nil {
			return inst.fail(&dlerrors.ExecutorError{Kind: "mount", Name: inst.Spec.Name, Err: err})
		}
	}

	workDir := filepath.Join(c.ScratchRoot, inst.ID.String())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return inst.fail(fmt.Errorf("create workspace: %w", err))
	}
	inst.WorkDir = workDir

	var sb strings.Builder
	sb.WriteString("#!/bin/sh\nset -e\n")
	for _, helper := range helpers {
		dst := filepath.Join(workDir, filepath.Base(helper.Path))
		if err := os.WriteFile(dst, helper.Body, 0o755); err != nil {
			return inst.fail(fmt.Errorf("materialize helper %s: %w", helper.Path, err))
		}
		fmt.Fprintf(&sb, ". %q\n", inContainerPath(dst, workDir, c.ProjectRoot))
	}
	if err := os.WriteFile(filepath.Join(workDir, "preamble.sh"), []byte(sb.String()), 0o755); err != nil {
		return inst.fail(fmt.Errorf("write preamble: %w", err))
	}

	return inst.transition(StateReady)
}

func (c *Container) Execute(ctx context.Context, inst *Instance, scriptPath string, argv []string, env []string, stdout, stderr io.Writer) (int, error) {
	release := inst.acquire()
	defer release()

	if err := inst.transition(StateExecuting); err != nil {
		return -1, err
	}
	defer inst.transition(StateReady)

	preamble := inContainerPath(filepath.Join(inst.WorkDir, "preamble.sh"), inst.WorkDir, c.ProjectRoot)
	inScript := inContainerPath(scriptPath, "", c.ProjectRoot)

	cmdline := fmt.Sprintf("cd %q && . %q && exec %q \"$@\"", MountPoint, preamble, inScript)
	argv2 := append([]string{"sh", "-c", cmdline, "sh"}, argv...)

	exitCode, err := c.Engine.Exec(ctx, inst.ContainerID, false, argv2, stdout, stderr)
	if err != nil {
		return -1, &dlerrors.ExecutorError{Kind: "start", Name: inst.Spec.Name, Err: err}
	}
	return exitCode, nil
}

func (c *Container) Release(ctx context.Context, inst *Instance) error {
	return nil
}

func (c *Container) TearDown(ctx context.Context, inst *Instance) error {
	if err := inst.transition(StateTornDown); err != nil {
		return err
	}
	var errs []error
	if inst.ContainerID != "" {
		if err := c.Engine.Stop(ctx, inst.ContainerID, teardownGrace); err != nil {
			errs = append(errs, err)
		}
		if err := c.Engine.Remove(ctx, inst.ContainerID); err != nil {
			errs = append(errs, err)
		}
	}
	if inst.WorkDir != "" {
		if err := os.RemoveAll(inst.WorkDir); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &dlerrors.ExecutorError{Kind: "teardown", Name: inst.Spec.Name, Err: errs[0]}
	}
	return nil
}

// inContainerPath rewrites a host-side path rooted at projectRoot (or, for
// scratch-workspace files, at workDir) to its in-container equivalent
// under MountPoint. Prepare mounts only the project root and extra_mounts,
// so a scratch workspace is reachable in the container only when
// ScratchRoot lies under projectRoot (as cmd/dl arranges); a path outside
// projectRoot is returned unchanged.
func inContainerPath(hostPath, _workDir, projectRoot string) string {
	rel, err := filepath.Rel(projectRoot, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hostPath
	}
	return filepath.Join(MountPoint, rel)
}

func splitMount(spec string) (host, container string, err error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("extra_mounts entry %q must be host:container", spec)
	}
	return parts[0], parts[1], nil
}

func runtimeIsLinux() bool {
	return goruntime.GOOS == "linux"
}
