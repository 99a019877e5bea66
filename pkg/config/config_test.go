package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "helmsman", cfg.App.Name)
	assert.Equal(t, 20, cfg.Browser.MaxIterations)
	assert.Equal(t, time.Second, cfg.Browser.StepDelay)
	assert.Equal(t, 500, cfg.Browser.FallbackDistance)
	assert.Equal(t, 60*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "/bin/sh", cfg.Executor.Shell)
	assert.Equal(t, 10, cfg.Memory.HistoryLimit)
	assert.Equal(t, "info", cfg.Logger.Level)

	_, ok := cfg.GetTelegramConfig()
	assert.False(t, ok)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "helmsman.yaml")
	body := `
app:
  name: testbot
providers:
  openai:
    api_key: sk-test
    model: gpt-4o
    enabled: true
gateways:
  telegram:
    token: "123:abc"
    enabled: true
browser:
  adaptive: true
  max_iterations: 5
  step_delay: 250ms
safety:
  extra_commands: [terraform]
  extra_patterns: ['git\s+push\s+--force']
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Setenv("HELMSMAN_EXECUTOR_SHELL", "/bin/bash")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "testbot", cfg.App.Name)
	assert.True(t, cfg.Browser.Adaptive)
	assert.Equal(t, 5, cfg.Browser.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser.StepDelay)
	assert.Equal(t, "/bin/bash", cfg.Executor.Shell)
	assert.Equal(t, []string{"terraform"}, cfg.Safety.ExtraCommands)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-test", p.APIKey)

	tg, ok := cfg.GetTelegramConfig()
	require.True(t, ok)
	assert.Equal(t, "123:abc", tg.Token)
	assert.Equal(t, 2*time.Minute, tg.ConfirmTimeout)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load("")
	require.NoError(t, err)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.Equal(t, "sk-env", p.APIKey)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "helmsman.yaml")
	t.Setenv("OPENAI_API_KEY", "")

	require.NoError(t, WriteDefault(path))
	assert.Error(t, WriteDefault(path), "existing files are not overwritten")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Browser.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Browser.ActionTimeout)
	name, _ := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
}
