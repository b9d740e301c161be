package cli

import (
	"os"

	"github.com/rtzoeller/perfetto/internal/config"
	"github.com/rtzoeller/perfetto/internal/manifest"
	"github.com/rtzoeller/perfetto/internal/registry"
	"github.com/rtzoeller/perfetto/internal/report"
)

// loadConfig resolves the effective configuration: the explicit
// --config path when given, otherwise tracediff.yaml in the working
// directory when present, otherwise built-in defaults.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	path := opts.Config
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigFile); err == nil {
			path = config.DefaultConfigFile
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// discoverRegistry walks modulesDir for test manifests and registers
// every loadable module. Broken modules come back as failures so the
// caller can proceed with the healthy ones.
func discoverRegistry(modulesDir string) (*registry.Registry, []report.ModuleFailure, error) {
	modules, loadErrs, err := manifest.Discover(modulesDir)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New()
	var failures []report.ModuleFailure
	for _, m := range modules {
		if err := reg.Add(m); err != nil {
			failures = append(failures, report.ModuleFailure{Module: m.Name(), Err: err.Error()})
		}
	}
	for _, le := range loadErrs {
		failures = append(failures, report.ModuleFailure{
			Module: le.Dir,
			Path:   le.Path,
			Err:    le.Err.Error(),
		})
	}
	return reg, failures, nil
}
