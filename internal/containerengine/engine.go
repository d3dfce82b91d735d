// Package containerengine defines the narrow abstract contract the
// Container executor variant speaks to a container runtime, per
// SPEC_FULL.md §4.E: "the core never imports a container SDK directly."
package containerengine

import (
	"context"
	"io"
)

// CreateOpts describes a container to create.
type CreateOpts struct {
	Name     string
	Image    string
	User     string
	Hostname string
	Mounts   []Mount // host:container bind mounts
	Env      []string
	TCPPorts []int
	UDPPorts []int
	Network  string // empty = default network
	Cmd      []string
}

// Mount is one host:container bind mount.
type Mount struct {
	Host      string
	Container string
}

// Engine is the capability set the Container executor variant needs from a
// container runtime. The shipped implementation (dockercli) satisfies it by
// shelling out to a docker-compatible CLI on PATH.
type Engine interface {
	Pull(ctx context.Context, image string) error
	Create(ctx context.Context, opts CreateOpts) (containerID string, err error)
	Start(ctx context.Context, containerID string) error
	Exec(ctx context.Context, containerID string, asRoot bool, argv []string, stdout, stderr io.Writer) (exitCode int, err error)
	Stop(ctx context.Context, containerID string, graceSeconds int) error
	Remove(ctx context.Context, containerID string) error
	CreateNetwork(ctx context.Context, name string) error
	RemoveNetwork(ctx context.Context, name string) error
	Inspect(ctx context.Context, containerID string) (running bool, err error)
}
