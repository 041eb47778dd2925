// Package testsupport provides helpers shared across package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"vidsight/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.YouTube.APIKey = "test"
	cfg.OpenAI.APIKey = "test"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithWorkerCount overrides the orchestrator worker count on the test config.
func WithWorkerCount(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.JobWorkerCount = n
	}
}

// WithYouTubeBaseURL points the extractor at a test server.
func WithYouTubeBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.YouTube.BaseURL = url
	}
}

// WithOpenAIBaseURL points the analysis clients at a test server.
func WithOpenAIBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.OpenAI.BaseURL = url
	}
}
