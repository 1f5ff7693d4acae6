package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/provider"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fractal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "assistant", f.Agent.Name)
	assert.Equal(t, "openai", f.Provider.Name)
	assert.Equal(t, "info", f.Logging.Level)

	cfg, err := f.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultConfig().MaxIterations, cfg.MaxIterations)
	assert.Equal(t, core.ToolCallingStable, cfg.ToolCallingVersion)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
agent:
  name: researcher
  description: Digs things up.
provider:
  name: anthropic
  model: claude-sonnet-4-20250514
runtime:
  max_iterations: 8
  timeout: 30s
  tool_calling_version: turbo
  retain_history: true
tools:
  - name: search
    command: /usr/local/bin/search-tool
    args: ["--index", "main"]
`)

	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "researcher", f.Agent.Name)
	assert.Equal(t, "anthropic", f.Provider.Name)

	cfg, err := f.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, core.ToolCallingTurbo, cfg.ToolCallingVersion)
	assert.True(t, cfg.RetainHistory)

	specs := f.ToolSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, "search", specs[0].Name)
	assert.Equal(t, "/usr/local/bin/search-tool", specs[0].Command)
	assert.Equal(t, []string{"--index", "main"}, specs[0].Args)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FRACTAL_PROVIDER_NAME", "mock")
	t.Setenv("FRACTAL_RUNTIME_MAX_ITERATIONS", "2")

	f, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mock", f.Provider.Name)

	cfg, err := f.RuntimeConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxIterations)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load("/nonexistent/fractal.yaml")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeInitializationFailure))
}

func TestRuntimeConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
runtime:
  max_iterations: 0
`)

	f, err := Load(path)
	require.NoError(t, err)

	_, err = f.RuntimeConfig()
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeInitializationFailure))
}

func TestNewBackend_Mock(t *testing.T) {
	f := &File{}
	f.Provider.Name = "mock"

	b, err := f.NewBackend()
	require.NoError(t, err)
	assert.IsType(t, &provider.MockBackend{}, b)
}

func TestNewBackend_Unknown(t *testing.T) {
	f := &File{}
	f.Provider.Name = "quantum"

	_, err := f.NewBackend()
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeInitializationFailure))
}
