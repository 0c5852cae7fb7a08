package testsupport

import (
	"path/filepath"
	"testing"

	"reelforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t   testing.TB
	cfg *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry backoff is zeroed so transition tests run without sleeping.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Generation.APIKey = "test"
	cfgVal.Workflow.RetryBackoffBaseSeconds = 0
	cfgVal.Workflow.JobTimeoutSeconds = 30

	builder := &configBuilder{
		t:   t,
		cfg: &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSelectionMode sets the workflow selection mode on the test config.
func WithSelectionMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.SelectionMode = mode
	}
}

// WithGenerationBaseURL points the generation client at a test server.
func WithGenerationBaseURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.BaseURL = baseURL
	}
}

// WithLLM sets the reasoning model endpoint and credentials, typically a
// httptest server standing in for the real provider.
func WithLLM(baseURL, apiKey, model string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = apiKey
		b.cfg.LLM.Model = model
	}
}

// WithMaxRetries overrides the retry budget on the test config.
func WithMaxRetries(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxRetries = n
	}
}

// WithMaxConcurrency overrides the worker pool size on the test config.
func WithMaxConcurrency(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxConcurrency = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
