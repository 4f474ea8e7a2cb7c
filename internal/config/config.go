// Package config provides configuration loading for minisum.
//
// Values are resolved in this order, later sources winning:
//   - built-in defaults (Default)
//   - the YAML file given with --config or MINISUM_CONFIG
//   - MINISUM_* environment variables, which may come from a .env file
//   - command line flags, applied by the caller
//
// Provider credentials (OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY,
// OLLAMA_HOST) are never part of the config file. The provider clients read them directly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the configuration for a summarization run.
type Config struct {
	// Provider selects the completion backend: openai, anthropic, ollama,
	// gemini or echo.
	// Default: openai
	Provider string `yaml:"provider"`

	// Model is the provider model name. Empty uses the provider default.
	Model string `yaml:"model"`

	// Budget is the maximum cost of the working set before finalizing.
	// Default: 3000
	Budget int `yaml:"budget"`

	// MaxCollapses bounds the number of collapse iterations.
	// Default: 10
	MaxCollapses int `yaml:"max_collapses"`

	// Concurrency is the number of in-flight model calls.
	// Default: 10
	Concurrency int `yaml:"concurrency"`

	// Estimator is the cost measure: chars or tiktoken.
	// Default: chars
	Estimator string `yaml:"estimator"`

	// Chunking configures how documents are split.
	Chunking ChunkingConfig `yaml:"chunking"`

	// Checkpoint is the path of the resume file. Empty disables checkpointing.
	Checkpoint string `yaml:"checkpoint"`

	// CacheSize is the number of completions kept in memory. 0 disables the cache.
	// Default: 256
	CacheSize int `yaml:"cache_size"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`

	// Prompts overrides the built-in prompt templates.
	Prompts PromptsConfig `yaml:"prompts"`
}

// ChunkingConfig configures document splitting. Sizes are in runes.
type ChunkingConfig struct {
	// Size is the maximum chunk length.
	// Default: 2000
	Size int `yaml:"size"`

	// Overlap is carried from one piece of a long section to the next.
	// Default: 100
	Overlap int `yaml:"overlap"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text
	Format string `yaml:"format"`
}

// PromptsConfig holds text/template sources. The map template sees .Text,
// .Path and .Heading; the reduce template sees .Summaries and .Count.
// Empty selects the built-in prompt.
type PromptsConfig struct {
	Map    string `yaml:"map"`
	Reduce string `yaml:"reduce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Provider:     "openai",
		Budget:       3000,
		MaxCollapses: 10,
		Concurrency:  10,
		Estimator:    "chars",
		Chunking: ChunkingConfig{
			Size:    2000,
			Overlap: 100,
		},
		CacheSize: 256,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load returns the defaults merged with the file at path, if any, and the
// MINISUM_* environment. With an empty path MINISUM_CONFIG is consulted;
// no file at all is fine.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("MINISUM_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile merges a YAML file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides fields from MINISUM_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MINISUM_PROVIDER":   &c.Provider,
		"MINISUM_MODEL":      &c.Model,
		"MINISUM_ESTIMATOR":  &c.Estimator,
		"MINISUM_CHECKPOINT": &c.Checkpoint,
		"MINISUM_LOG_LEVEL":  &c.Log.Level,
		"MINISUM_LOG_FORMAT": &c.Log.Format,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MINISUM_BUDGET":        &c.Budget,
		"MINISUM_MAX_COLLAPSES": &c.MaxCollapses,
		"MINISUM_CONCURRENCY":   &c.Concurrency,
		"MINISUM_CHUNK_SIZE":    &c.Chunking.Size,
		"MINISUM_CHUNK_OVERLAP": &c.Chunking.Overlap,
		"MINISUM_CACHE_SIZE":    &c.CacheSize,
	}
	var errs []error
	for name, dst := range ints {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: not an integer: %q", name, v))
			continue
		}
		*dst = n
	}
	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case "openai", "anthropic", "ollama", "gemini", "echo":
	default:
		errs = append(errs, fmt.Errorf("invalid provider: %q", c.Provider))
	}

	switch c.Estimator {
	case "chars", "tiktoken", "bpe":
	default:
		errs = append(errs, fmt.Errorf("invalid estimator: %q", c.Estimator))
	}

	if c.Budget < 1 {
		errs = append(errs, fmt.Errorf("budget must be positive, got %d", c.Budget))
	}
	if c.MaxCollapses < 1 {
		errs = append(errs, fmt.Errorf("max_collapses must be positive, got %d", c.MaxCollapses))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.Chunking.Size < 1 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size))
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must not be negative, got %d", c.CacheSize))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
