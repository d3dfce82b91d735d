// Package schema defines the YAML-decodable corpus schema: the top-level
// config, executor specs, task specs, and the preset/step/option types they
// compose, along with validator struct tags enforcing the invariants of
// the data model.
package schema

// LocationDoc is the YAML-decodable form of a Location (§3 of the spec).
// Exactly one of Path or Http is set.
type LocationDoc struct {
	Path    string `yaml:"path,omitempty" validate:"required_without=Http"`
	Recurse bool   `yaml:"recurse,omitempty"`
	Http    string `yaml:"http,omitempty" validate:"required_without=Path,omitempty,url"`
}

// ProvideEntry advertises a capability an executor offers.
type ProvideEntry struct {
	Name    string `yaml:"name" validate:"required"`
	Version string `yaml:"version,omitempty"`
}

// NeedEntry declares a capability a task requires.
type NeedEntry struct {
	Name    string `yaml:"name" validate:"required"`
	Matcher string `yaml:"version,omitempty"` // semver constraint range; empty matches any version
}

// ContainerParams holds the container-specific fields of an ExecutorSpec.
type ContainerParams struct {
	Image                       string   `yaml:"image" validate:"required"`
	NamePrefix                  string   `yaml:"name_prefix" validate:"required,endswith=-"`
	User                        string   `yaml:"user,omitempty"`
	Hostname                    string   `yaml:"hostname,omitempty"`
	ExtraMounts                 []string `yaml:"extra_mounts,omitempty"`
	ExportEnv                   []string `yaml:"export_env,omitempty"`
	TCPPortsToExpose            []int    `yaml:"tcp_ports_to_expose,omitempty"`
	UDPPortsToExpose            []int    `yaml:"udp_ports_to_expose,omitempty"`
	ExperimentalPermissionHelper bool    `yaml:"experimental_permission_helper,omitempty"`
}

// ExecutorSpec is the tagged union over Host and Container executors.
type ExecutorSpec struct {
	Name      string           `yaml:"name" validate:"required"`
	Type      string           `yaml:"type" validate:"required,oneof=host container"`
	Container *ContainerParams `yaml:"container,omitempty"`
	Provides  []ProvideEntry   `yaml:"provides,omitempty"`
}

// Step is one element of a pipeline or parallel-pipeline.
type Step struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description,omitempty"`
	Task        string   `yaml:"task" validate:"required"`
	Args        []string `yaml:"args,omitempty"`
}

// Option is one branch of a oneof task.
type Option struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description,omitempty"`
	Task        string   `yaml:"task" validate:"required"`
	Args        []string `yaml:"args,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// TaskKind enumerates the TaskSpec.Kind tagged-union discriminator.
type TaskKind string

const (
	KindCommand          TaskKind = "command"
	KindOneof            TaskKind = "oneof"
	KindPipeline         TaskKind = "pipeline"
	KindParallelPipeline TaskKind = "parallel-pipeline"
)

// TaskSpec is the YAML-decodable form of a task definition (§3).
type TaskSpec struct {
	Name           string      `yaml:"name" validate:"required"`
	Kind           TaskKind    `yaml:"kind" validate:"required,oneof=command oneof pipeline parallel-pipeline"`
	Description    string      `yaml:"description,omitempty"`
	Location       *LocationDoc `yaml:"location,omitempty"`
	Needs          []NeedEntry `yaml:"needs,omitempty"`
	CustomExecutor *ExecutorSpec `yaml:"custom_executor,omitempty"`
	Steps          []Step      `yaml:"steps,omitempty"`
	Options        []Option    `yaml:"options,omitempty"`
	Tags           []string    `yaml:"tags,omitempty"`
	Internal       bool        `yaml:"internal,omitempty"`
}

// Preset is a named aggregation of tagged tasks (§3).
type Preset struct {
	Name        string   `yaml:"name" validate:"required"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags" validate:"required,min=1"`
}

// TopLevelConfig is the decoded form of .dl/config.yml. Every field is
// optional.
type TopLevelConfig struct {
	DefaultExecutor   *ExecutorSpec  `yaml:"default_executor,omitempty"`
	EnsureDirectories []string       `yaml:"ensure_directories,omitempty"`
	ExecutorLocations []LocationDoc  `yaml:"executor_locations,omitempty"`
	HelperLocations   []LocationDoc  `yaml:"helper_locations,omitempty"`
	TaskLocations     []LocationDoc  `yaml:"task_locations,omitempty"`
	Presets           []Preset       `yaml:"presets,omitempty"`
}

// TasksFile is the top-level shape of a dl-tasks.yml document.
type TasksFile struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// ExecutorsFile is the top-level shape of a dl-executors.yml document.
type ExecutorsFile struct {
	Executors []ExecutorSpec `yaml:"executors"`
}
