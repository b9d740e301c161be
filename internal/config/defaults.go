package config

import "time"

const (
	// DefaultModulesDir is scanned for module manifests.
	DefaultModulesDir = "tests"
	// DefaultTimeout bounds each engine invocation.
	DefaultTimeout = 60 * time.Second
	// DefaultJobs is the worker count when neither config nor flags set
	// one.
	DefaultJobs = 4
	// DefaultReportPath is where run reports land.
	DefaultReportPath = "out/report.json"
	// DefaultConfigFile is probed when --config is not given.
	DefaultConfigFile = "tracediff.yaml"
)

// DefaultEngineArgs is the conventional flag shape of trace query
// engine shells: query file via -q, trace as the positional argument.
var DefaultEngineArgs = []string{"-q", "{query}", "{trace}"}
