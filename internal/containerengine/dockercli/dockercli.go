// Package dockercli implements containerengine.Engine by shelling out to
// a docker-compatible CLI binary on PATH, reusing the same
// graceful-shutdown idiom the teacher uses for host commands (SIGINT, then
// SIGKILL after a grace period).
package dockercli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/devloop-run/dl/internal/containerengine"
)

// WaitDelay is the grace period given to the docker CLI child before it is
// force-killed on context cancellation, mirroring exec.go's WaitDelay.
const WaitDelay = 5 * time.Second

// Engine shells out to `binary` (default "docker") for every operation.
type Engine struct {
	Binary string
}

// New creates an Engine using the given CLI binary name, defaulting to
// "docker" when empty.
func New(binary string) *Engine {
	if binary == "" {
		binary = "docker"
	}
	return &Engine{Binary: binary}
}

func (e *Engine) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.Binary, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = WaitDelay
	return cmd
}

func (e *Engine) run(ctx context.Context, args ...string) (string, error) {
	cmd := e.command(ctx, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s %v: %w: %s", e.Binary, args, err, errOut.String())
	}
	return out.String(), nil
}

func (e *Engine) Pull(ctx context.Context, image string) error {
	_, err := e.run(ctx, "image", "inspect", image)
	if err == nil {
		return nil
	}
	_, err = e.run(ctx, "pull", image)
	return err
}

func (e *Engine) Create(ctx context.Context, opts containerengine.CreateOpts) (string, error) {
	args := []string{"create", "--name", opts.Name}
	if opts.User != "" {
		args = append(args, "--user", opts.User)
	}
	if opts.Hostname != "" {
		args = append(args, "--hostname", opts.Hostname)
	}
	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}
	for _, m := range opts.Mounts {
		args = append(args, "-v", m.Host+":"+m.Container)
	}
	for _, env := range opts.Env {
		args = append(args, "-e", env)
	}
	for _, p := range opts.TCPPorts {
		args = append(args, "-p", fmt.Sprintf("%d:%d/tcp", p, p))
	}
	for _, p := range opts.UDPPorts {
		args = append(args, "-p", fmt.Sprintf("%d:%d/udp", p, p))
	}
	args = append(args, opts.Image)
	args = append(args, opts.Cmd...)

	out, err := e.run(ctx, args...)
	if err != nil {
		return "", err
	}
	return firstLine(out), nil
}

func (e *Engine) Start(ctx context.Context, containerID string) error {
	_, err := e.run(ctx, "start", containerID)
	return err
}

func (e *Engine) Exec(ctx context.Context, containerID string, asRoot bool, argv []string, stdout, stderr io.Writer) (int, error) {
	args := []string{"exec"}
	if asRoot {
		args = append(args, "--user", "root")
	}
	args = append(args, containerID)
	args = append(args, argv...)

	cmd := e.command(ctx, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

func (e *Engine) Stop(ctx context.Context, containerID string, graceSeconds int) error {
	_, err := e.run(ctx, "stop", "--time", strconv.Itoa(graceSeconds), containerID)
	return err
}

func (e *Engine) Remove(ctx context.Context, containerID string) error {
	_, err := e.run(ctx, "rm", "-f", containerID)
	return err
}

func (e *Engine) CreateNetwork(ctx context.Context, name string) error {
	_, err := e.run(ctx, "network", "create", name)
	return err
}

func (e *Engine) RemoveNetwork(ctx context.Context, name string) error {
	_, err := e.run(ctx, "network", "rm", name)
	return err
}

// ListByPrefix returns the IDs of all containers (running or stopped) whose
// name starts with prefix. It is not part of containerengine.Engine — only
// the `clean` command needs it, and no other engine implementation in this
// codebase needs to support it.
func (e *Engine) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	out, err := e.run(ctx, "ps", "-a", "--filter", "name=^"+prefix, "--format", "{{.ID}}")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range splitLines(out) {
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func (e *Engine) Inspect(ctx context.Context, containerID string) (bool, error) {
	out, err := e.run(ctx, "inspect", "-f", "{{.State.Running}}", containerID)
	if err != nil {
		return false, err
	}
	return firstLine(out) == "true", nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
