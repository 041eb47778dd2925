package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"vidsight/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, path, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path == "" {
		t.Fatal("Load returned empty path")
	}
	if cfg.Workflow.JobWorkerCount != 2 {
		t.Fatalf("job_worker_count = %d, want default 2", cfg.Workflow.JobWorkerCount)
	}
	if cfg.Retry.TransientMaxAttempts != 3 || cfg.Retry.RateLimitMaxAttempts != 5 {
		t.Fatalf("retry defaults = %+v", cfg.Retry)
	}
}

func TestLoadParsesFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + dir + `/data"
log_dir = "` + dir + `/logs"

[workflow]
job_worker_count = 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workflow.JobWorkerCount != 4 {
		t.Fatalf("job_worker_count = %d, want 4", cfg.Workflow.JobWorkerCount)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Fatalf("openai key not taken from environment: %q", cfg.OpenAI.APIKey)
	}
	// File values should not lose unrelated defaults.
	if cfg.YouTube.MaxComments != 1000 {
		t.Fatalf("max_comments = %d, want default 1000", cfg.YouTube.MaxComments)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"no data dir", func(c *config.Config) { c.Paths.DataDir = "" }},
		{"zero workers", func(c *config.Config) { c.Workflow.JobWorkerCount = 0 }},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }},
		{"zero retry budget", func(c *config.Config) { c.Retry.TransientMaxAttempts = 0 }},
		{"negative retention", func(c *config.Config) { c.Workflow.JobRetentionDays = -1 }},
		{"no analysis model", func(c *config.Config) { c.OpenAI.AnalysisModel = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.StagingDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory %s not created: %v", dir, err)
		}
	}
}
