package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roadmetrics/countline/config"
)

func statOnly(paths ...string) func(string) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(path string) bool { return set[path] }
}

func noLookPath(string) (string, error) {
	return "", errors.New("not found")
}

func TestResolveConfigOverrideWins(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{BinaryPath: "/custom/engine", BinaryName: "countline-engine"}

	res := resolveWith(cfg, statOnly("/custom/engine", "/opt/countline/bin/countline-engine"), noLookPath)
	assert.Equal(t, "/custom/engine", res.Path)
	assert.True(t, res.Found)
}

func TestResolveConfigOverrideMissingStillUsed(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{BinaryPath: "/custom/engine", BinaryName: "countline-engine"}

	// An explicit override is honored even when nothing exists there; the
	// spawn failure surfaces at invocation with the configured path.
	res := resolveWith(cfg, statOnly(), noLookPath)
	assert.Equal(t, "/custom/engine", res.Path)
	assert.False(t, res.Found)
}

func TestResolveInstallDirsBeforePath(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{BinaryName: "countline-engine"}
	lookPath := func(string) (string, error) { return "/usr/bin/countline-engine", nil }

	res := resolveWith(cfg, statOnly("/opt/countline/bin/countline-engine"), lookPath)
	assert.Equal(t, "/opt/countline/bin/countline-engine", res.Path)
	assert.True(t, res.Found)
}

func TestResolveFallsBackToPathLookup(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{BinaryName: "countline-engine"}
	lookPath := func(name string) (string, error) { return "/usr/bin/" + name, nil }

	res := resolveWith(cfg, statOnly(), lookPath)
	assert.Equal(t, "/usr/bin/countline-engine", res.Path)
	assert.True(t, res.Found)
}

func TestResolveBareNameFallback(t *testing.T) {
	t.Parallel()

	cfg := config.EngineConfig{BinaryName: "countline-engine"}

	res := resolveWith(cfg, statOnly(), noLookPath)
	assert.Equal(t, "countline-engine", res.Path)
	assert.False(t, res.Found)
}
