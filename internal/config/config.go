// Package config loads tracediff configuration: fixture roots, the
// external engine command, and run defaults.
//
// Configuration layers, later layers winning:
//
//  1. built-in defaults
//  2. a .env file next to the config file (process environment)
//  3. the YAML config file itself, strictly decoded
//  4. TRACEDIFF_* environment variables
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML fields written in Go duration
// syntax, such as "90s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig describes how to invoke the external query engine.
type EngineConfig struct {
	// Bin is the engine binary; PATH lookup applies.
	Bin string `yaml:"bin"`
	// Args is the argument template. {trace} and {query} are replaced
	// with the resolved fixture paths.
	Args []string `yaml:"args"`
	// Env appends KEY=VALUE pairs to the engine's environment.
	Env []string `yaml:"env"`
}

// RootsConfig lists the ordered search directories per fixture
// category.
type RootsConfig struct {
	Trace  []string `yaml:"trace"`
	Query  []string `yaml:"query"`
	Golden []string `yaml:"golden"`
}

// NormalizeConfig toggles optional output normalization before diffing.
type NormalizeConfig struct {
	// Unicode enables NFC normalization of both sides.
	Unicode bool `yaml:"unicode"`
}

// Config is the full tracediff configuration.
type Config struct {
	// ModulesDir is the directory scanned for test module manifests.
	ModulesDir string       `yaml:"modules_dir"`
	Roots      RootsConfig  `yaml:"roots"`
	Engine     EngineConfig `yaml:"engine"`
	// Timeout is the default per-case engine budget. Zero disables it.
	Timeout Duration `yaml:"timeout"`
	// Jobs is the default worker count.
	Jobs int `yaml:"jobs"`
	// Report is where the JSON run report is written. Empty disables it.
	Report string `yaml:"report"`
	// History is the run-history SQLite database. Empty disables
	// history recording.
	History   string          `yaml:"history"`
	Normalize NormalizeConfig `yaml:"normalize"`
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		ModulesDir: DefaultModulesDir,
		Engine:     EngineConfig{Args: append([]string(nil), DefaultEngineArgs...)},
		Timeout:    Duration(DefaultTimeout),
		Jobs:       DefaultJobs,
		Report:     DefaultReportPath,
	}
}

// Load builds the configuration from the file at path layered over the
// defaults. An empty path skips the file and applies defaults plus
// environment only; a non-empty path must exist.
func Load(path string) (*Config, error) {
	cfg := New()

	dir := "."
	if path != "" {
		dir = filepath.Dir(path)
	}
	// A .env next to the config file is optional.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers TRACEDIFF_* overrides onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("TRACEDIFF_ENGINE"); v != "" {
		cfg.Engine.Bin = v
	}
	if v := os.Getenv("TRACEDIFF_DB"); v != "" {
		cfg.History = v
	}
	if v := os.Getenv("TRACEDIFF_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Jobs = n
		}
	}
}

// Validate checks invariants that would otherwise surface mid-run.
func (c *Config) Validate() error {
	if c.ModulesDir == "" {
		return fmt.Errorf("modules_dir must not be empty")
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if len(c.Engine.Args) > 0 {
		var hasTrace, hasQuery bool
		for _, a := range c.Engine.Args {
			if strings.Contains(a, "{trace}") {
				hasTrace = true
			}
			if strings.Contains(a, "{query}") {
				hasQuery = true
			}
		}
		if !hasTrace || !hasQuery {
			return fmt.Errorf("engine args must reference both {trace} and {query}, got %v", c.Engine.Args)
		}
	}
	return nil
}
