package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 10, cfg.ABTestMinConversions)
	assert.Equal(t, 0.3, cfg.OptimizationThreshold)
	assert.Equal(t, 24, cfg.TrendAnalysisIntervalHours)
	assert.Equal(t, 10*time.Second, cfg.ExternalTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().DBPath, cfg.DBPath)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cashloop.yaml")
	data := []byte("ab_test_min_conversions: 25\noptimization_threshold: 0.5\nexternal_timeout: 3s\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("OPTIMIZATION_THRESHOLD", "0.4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.ABTestMinConversions)
	assert.Equal(t, 0.4, cfg.OptimizationThreshold)
	assert.Equal(t, 3*time.Second, cfg.ExternalTimeout)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("AB_TEST_MIN_CONVERSIONS", "ten")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AB_TEST_MIN_CONVERSIONS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"negative min conversions", func(c *Config) { c.ABTestMinConversions = -1 }},
		{"threshold zero", func(c *Config) { c.OptimizationThreshold = 0 }},
		{"threshold above one", func(c *Config) { c.OptimizationThreshold = 1.5 }},
		{"zero trend interval", func(c *Config) { c.TrendAnalysisIntervalHours = 0 }},
		{"no topics", func(c *Config) { c.TemplateTopics = nil }},
		{"zero batch", func(c *Config) { c.OptimizeBatchSize = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", loaded.RedisAddr)
	assert.Equal(t, cfg.ExternalTimeout, loaded.ExternalTimeout)
}
