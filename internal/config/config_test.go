package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, 3000, cfg.Budget)
	assert.Equal(t, 10, cfg.MaxCollapses)
	assert.Equal(t, 10, cfg.Concurrency)
	assert.Equal(t, 2000, cfg.Chunking.Size)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("MINISUM_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "minisum.yaml")
	configContent := `
provider: ollama
model: llama3.2
budget: 1500
chunking:
  size: 800
log:
  format: json
prompts:
  map: "Summarize {{.Text}}"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "llama3.2", cfg.Model)
	assert.Equal(t, 1500, cfg.Budget)
	assert.Equal(t, 800, cfg.Chunking.Size)
	// unset keys keep their defaults
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "Summarize {{.Text}}", cfg.Prompts.Map)
	assert.Empty(t, cfg.Prompts.Reduce)
}

func TestLoad_FromEnvPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "minisum.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("budget: 42\n"), 0o644))
	t.Setenv("MINISUM_CONFIG", configPath)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Budget)
}

func TestLoad_EmptyFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "minisum.yaml")
	require.NoError(t, os.WriteFile(configPath, nil, 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Budget)
}

func TestLoad_UnknownKey(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "minisum.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("budgit: 10\n"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "minisum.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("provider: ollama\nbudget: 1500\n"), 0o644))
	t.Setenv("MINISUM_PROVIDER", "echo")
	t.Setenv("MINISUM_BUDGET", " 700 ")
	t.Setenv("MINISUM_CHECKPOINT", "/tmp/run.cbor")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.Provider)
	assert.Equal(t, 700, cfg.Budget)
	assert.Equal(t, "/tmp/run.cbor", cfg.Checkpoint)
}

func TestApplyEnv_BadInteger(t *testing.T) {
	env := map[string]string{"MINISUM_CONCURRENCY": "many"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	err := cfg.applyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINISUM_CONCURRENCY")
	assert.Equal(t, 10, cfg.Concurrency)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"provider", func(c *Config) { c.Provider = "mistral" }, "invalid provider"},
		{"estimator", func(c *Config) { c.Estimator = "words" }, "invalid estimator"},
		{"budget", func(c *Config) { c.Budget = 0 }, "budget must be positive"},
		{"max collapses", func(c *Config) { c.MaxCollapses = -1 }, "max_collapses"},
		{"concurrency", func(c *Config) { c.Concurrency = 0 }, "concurrency"},
		{"overlap", func(c *Config) { c.Chunking.Overlap = 2000 }, "chunking.overlap"},
		{"cache", func(c *Config) { c.CacheSize = -5 }, "cache_size"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
