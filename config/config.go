// Package config loads buzz.toml, the VM's TOML-backed configuration
// file. Grounded on the teacher's manifest package (manifest/manifest.go),
// which loads maggie.toml the same way: a single Load(dir) entry point,
// toml.Unmarshal into a struct tagged with `toml:"..."`, wrapped errors
// naming the path that failed.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/buzz-lang/buzz/vm"
)

// GC configures the collector's cadence (spec.md §4.2's "configurable,
// default" thresholds).
type GC struct {
	YoungThresholdBytes int    `toml:"young-threshold-bytes"`
	YoungGCCountForFull int    `toml:"young-gc-count-for-full"`
	StatsInterval       string `toml:"stats-interval"` // parsed with time.ParseDuration
}

// Runtime configures import resolution and diagnostics (§6: "BUZZ_PATH
// environment variable (colon-separated)" — buzz.toml gives a file-based
// fallback searched after the env var, mirroring the teacher's
// Dependencies/Source path resolution).
type Runtime struct {
	BuzzPath []string `toml:"buzz-path"`
	Debug    bool     `toml:"debug"`
}

// Config is the root of buzz.toml.
type Config struct {
	GC      GC      `toml:"gc"`
	Runtime Runtime `toml:"runtime"`

	// Dir is the directory containing the loaded buzz.toml (set at load
	// time, not parsed from the file itself).
	Dir string `toml:"-"`
}

// Default returns the configuration used when no buzz.toml is present,
// matching vm.DefaultGCConfig()'s values.
func Default() *Config {
	d := vm.DefaultGCConfig()
	return &Config{
		GC: GC{
			YoungThresholdBytes: d.YoungThresholdBytes,
			YoungGCCountForFull: d.YoungGCCountForFull,
			StatsInterval:       d.StatsInterval.String(),
		},
	}
}

// Load parses buzz.toml from dir. A missing file is not an error: it
// returns Default() with Dir set, so callers never need a separate
// "config file is optional" branch.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "buzz.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.Dir = dir
			return cfg, nil
		}
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	cfg.Dir = dir
	return cfg, nil
}

// GCConfig translates the TOML-shaped settings into vm.GCConfig,
// falling back to vm.DefaultGCConfig()'s values for anything left zero
// or unparseable.
func (c *Config) GCConfig() vm.GCConfig {
	def := vm.DefaultGCConfig()
	out := def
	if c.GC.YoungThresholdBytes > 0 {
		out.YoungThresholdBytes = c.GC.YoungThresholdBytes
	}
	if c.GC.YoungGCCountForFull > 0 {
		out.YoungGCCountForFull = c.GC.YoungGCCountForFull
	}
	if c.GC.StatsInterval != "" {
		if d, err := time.ParseDuration(c.GC.StatsInterval); err == nil {
			out.StatsInterval = d
		}
	}
	return out
}

// ImportPaths returns the search list for import resolution, combining
// BUZZ_PATH (colon-separated, per §6) ahead of buzz.toml's runtime.buzz-path
// entries — the environment variable takes precedence so a shell override
// always wins over the checked-in file.
func (c *Config) ImportPaths() []string {
	var paths []string
	if env := os.Getenv("BUZZ_PATH"); env != "" {
		paths = append(paths, strings.Split(env, ":")...)
	}
	paths = append(paths, c.Runtime.BuzzPath...)
	return paths
}
