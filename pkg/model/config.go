package model

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the tunable parameters of the pipeline. All thresholds and
// timeouts live here instead of being scattered across call sites.
type Config struct {
	// SimilarityThreshold is the cosine similarity at or above which two
	// reports with different content hashes are treated as near-duplicates.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	RetryCount   int           `yaml:"retry_count"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// RequestTimeout bounds every single backend call (blob, embedding,
	// index). None of them may block a pipeline invocation indefinitely.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LockTimeout bounds acquisition of the per-(company, date) lock.
	LockTimeout time.Duration `yaml:"lock_timeout"`

	EmbeddingDimension int `yaml:"embedding_dimension"`
}

// DefaultConfig returns the configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.95,
		RetryCount:          3,
		RetryBackoff:        500 * time.Millisecond,
		RequestTimeout:      30 * time.Second,
		LockTimeout:         10 * time.Second,
		EmbeddingDimension:  768,
	}
}

// LoadConfig reads a YAML config file and applies it on top of the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, goerr.Wrap(err, "failed to parse config file", goerr.V("path", path))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return goerr.New("similarity_threshold must be in (0, 1]", goerr.V("value", c.SimilarityThreshold))
	}
	if c.RetryCount < 0 {
		return goerr.New("retry_count must not be negative", goerr.V("value", c.RetryCount))
	}
	if c.RequestTimeout <= 0 {
		return goerr.New("request_timeout must be positive", goerr.V("value", c.RequestTimeout))
	}
	if c.EmbeddingDimension <= 0 {
		return goerr.New("embedding_dimension must be positive", goerr.V("value", c.EmbeddingDimension))
	}
	return nil
}
