package config

import (
	"strings"
	"time"
)

// EngineConfig contains detection engine invocation configuration.
// The engine is an opaque external program; countline only depends on its
// argv/env/exit-code contract.
type EngineConfig struct {
	// BinaryPath is an explicit path to the detection engine executable.
	// When set it takes precedence over the lookup chain.
	BinaryPath string `env:"ENGINE_BINARY" envDefault:""`

	// BinaryName is the executable name used for PATH lookup and as the
	// final fallback when no installation is found.
	BinaryName string `env:"ENGINE_BINARY_NAME" envDefault:"countline-engine"`

	// Timeout is the hard ceiling for a single engine invocation. Exceeding
	// it is a failure, never success-with-partial-data.
	Timeout time.Duration `env:"ENGINE_TIMEOUT" envDefault:"2h"`

	// Threads caps engine worker threads (exported as an env var to the
	// subprocess). Zero lets the engine decide.
	Threads int `env:"ENGINE_THREADS" envDefault:"0"`

	// Headless disables any engine preview window.
	Headless bool `env:"ENGINE_HEADLESS" envDefault:"true"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	e.BinaryPath = strings.TrimSpace(e.BinaryPath)
	if strings.TrimSpace(e.BinaryName) == "" {
		e.BinaryName = "countline-engine"
	}
	if e.Timeout < time.Minute {
		e.Timeout = time.Minute
	}
	if e.Threads < 0 {
		e.Threads = 0
	}
}
