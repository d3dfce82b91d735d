package executor

import (
	"os"
	"sort"
	"strings"
)

// fixedEnvNames are passed to every executed task regardless of an
// executor's export_env list: the minimum a shell script needs to run,
// plus the color-control variables the output package itself honors
// (SPEC_FULL.md §4.E, "Host variant").
var fixedEnvNames = map[string]bool{
	"PATH":     true,
	"HOME":     true,
	"TMPDIR":   true,
	"NO_COLOR": true,
}

func isForceColorVar(name string) bool {
	return strings.HasPrefix(name, "DL_FORCE_")
}

// FilterEnv builds the environment a task should see from the current
// process environment: the fixed set plus exportEnv, by name only —
// neither Host nor Container gets the rest of dl's own environment.
func FilterEnv(exportEnv []string) []string {
	allow := make(map[string]bool, len(fixedEnvNames)+len(exportEnv))
	for name := range fixedEnvNames {
		allow[name] = true
	}
	for _, name := range exportEnv {
		allow[name] = true
	}

	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if allow[name] || isForceColorVar(name) {
			env = append(env, kv)
		}
	}
	sort.Strings(env)
	return env
}
