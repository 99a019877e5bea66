package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/helmsman/internal/governance"
	"github.com/rahul/helmsman/pkg/config"
)

func TestNewGate_ExtraRules(t *testing.T) {
	gate, err := newGate(config.SafetyConfig{
		ExtraCommands: []string{"terraform"},
		ExtraPatterns: []string{`kubectl\s+delete`},
	})
	require.NoError(t, err)

	for _, cmd := range []string{"terraform destroy", "kubectl delete ns prod"} {
		res, err := gate.Evaluate(context.Background(), governance.Request{Command: cmd})
		require.NoError(t, err)
		assert.True(t, res.NeedsConfirmation(), cmd)
	}

	res, err := gate.Evaluate(context.Background(), governance.Request{Command: "kubectl get pods"})
	require.NoError(t, err)
	assert.False(t, res.NeedsConfirmation())
}

func TestNewGate_BadPattern(t *testing.T) {
	_, err := newGate(config.SafetyConfig{ExtraPatterns: []string{"("}})
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	_, err := newModel(&config.Config{})
	assert.ErrorContains(t, err, "no enabled provider")

	_, err = newModel(&config.Config{Providers: map[string]config.ProviderConfig{
		"anthropic": {Enabled: true},
	}})
	assert.ErrorContains(t, err, "not supported")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helmsman.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_iterations: 20")
}
