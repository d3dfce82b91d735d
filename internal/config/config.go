// Package config loads the process-level settings of SPEC_FULL.md §6: an
// optional .dl/.env file seeding the process environment, then viper
// binding TMPDIR, DL_WORKER_COUNT and NO_COLOR from the environment. Viper
// reads no config file here; .dl/config.yml is decoded by package corpus.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Runtime holds the resolved process-level settings, env-sourced per §6.
type Runtime struct {
	TmpDir      string
	WorkerCount int
	NoColor     bool
}

// Load seeds the process environment from <projectRoot>/.dl/.env (if
// present, never overriding variables already set — a contributor's shell
// always wins over the checked-in convenience file), then resolves Runtime
// via viper's environment binding.
func Load(projectRoot string) (*Runtime, error) {
	envPath := filepath.Join(projectRoot, ".dl", ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	v.SetDefault("tmpdir", defaultTmpDir())
	v.SetDefault("dl_worker_count", runtime.NumCPU())
	v.AutomaticEnv()
	_ = v.BindEnv("tmpdir", "TMPDIR")
	_ = v.BindEnv("dl_worker_count", "DL_WORKER_COUNT")
	_ = v.BindEnv("no_color", "NO_COLOR")

	workers := v.GetInt("dl_worker_count")
	if raw := os.Getenv("DL_WORKER_COUNT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			workers = n
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	_, noColor := os.LookupEnv("NO_COLOR")

	return &Runtime{
		TmpDir:      v.GetString("tmpdir"),
		WorkerCount: workers,
		NoColor:     noColor,
	}, nil
}

func defaultTmpDir() string {
	if dir := os.Getenv("TMPDIR"); dir != "" {
		return dir
	}
	return os.TempDir()
}
