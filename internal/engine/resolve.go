// Package engine bridges the pipeline and the external vision detection
// engine. The engine is consumed as an opaque subprocess with a defined
// argv/env/exit-code contract; its model internals are not our concern.
package engine

import (
	"os"
	"os/exec"

	"github.com/roadmetrics/countline/config"
)

// Well-known installation paths checked after the config override and before
// PATH lookup.
var defaultInstallDirs = []string{
	"/opt/countline/bin",
	"/usr/local/bin",
}

// Resolution is the outcome of locating the engine executable. Resolution
// happens once, at process startup, and the result is injected into the
// adapter; a missing binary is not fatal until first invocation.
type Resolution struct {
	// Path is the executable to invoke. Always non-empty: when nothing was
	// found it falls back to the bare binary name so the spawn error
	// surfaces at invocation time with a usable message.
	Path string
	// Found reports whether the path was actually located on disk or PATH.
	Found bool
}

// Resolve locates the engine executable using the standard chain:
// explicit config override, known installation paths, PATH lookup,
// bare-name fallback.
func Resolve(cfg config.EngineConfig) Resolution {
	return resolveWith(cfg, executableAt, exec.LookPath)
}

func resolveWith(
	cfg config.EngineConfig,
	stat func(string) bool,
	lookPath func(string) (string, error),
) Resolution {
	if cfg.BinaryPath != "" {
		return Resolution{Path: cfg.BinaryPath, Found: stat(cfg.BinaryPath)}
	}

	for _, dir := range defaultInstallDirs {
		candidate := dir + "/" + cfg.BinaryName
		if stat(candidate) {
			return Resolution{Path: candidate, Found: true}
		}
	}

	if path, err := lookPath(cfg.BinaryName); err == nil {
		return Resolution{Path: path, Found: true}
	}

	return Resolution{Path: cfg.BinaryName, Found: false}
}

// executableAt reports whether a regular file exists at path. Execute
// permission is left for the spawn to verify.
func executableAt(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
