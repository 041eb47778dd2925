package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	APIBind    string `toml:"api_bind"`
}

// Log controls logger output.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Workflow tunes the orchestrator's scheduling behavior.
type Workflow struct {
	JobWorkerCount     int `toml:"job_worker_count"`
	PollInterval       int `toml:"poll_interval"`
	StepTimeout        int `toml:"step_timeout"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	// Finished jobs older than this are deleted at daemon startup.
	// Zero keeps them forever.
	JobRetentionDays int `toml:"job_retention_days"`
}

// Retry holds the per-kind retry budgets applied to step failures.
type Retry struct {
	TransientMaxAttempts int `toml:"transient_max_attempts"`
	TransientBackoffMS   int `toml:"transient_backoff_ms"`
	RateLimitMaxAttempts int `toml:"rate_limit_max_attempts"`
	RateLimitBackoffMS   int `toml:"rate_limit_backoff_ms"`
}

// YouTube configures the source data API used by the extraction step.
type YouTube struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	MaxComments    int    `toml:"max_comments"`
	RequestTimeout int    `toml:"request_timeout"`
}

// OpenAI configures the transcription and analysis executors.
type OpenAI struct {
	APIKey             string `toml:"api_key"`
	BaseURL            string `toml:"base_url"`
	TranscriptionModel string `toml:"transcription_model"`
	AnalysisModel      string `toml:"analysis_model"`
	RequestTimeout     int    `toml:"request_timeout"`
}

// Notifications configures event delivery to subscribers and push targets.
type Notifications struct {
	NtfyTopic        string `toml:"ntfy_topic"`
	RequestTimeout   int    `toml:"request_timeout"`
	SubscriberBuffer int    `toml:"subscriber_buffer"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Log           Log           `toml:"log"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	YouTube       YouTube       `toml:"youtube"`
	OpenAI        OpenAI        `toml:"openai"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "vidsight", "config.toml"), nil
}

// Load reads the config file at path (or the default location when path is
// empty), applies defaults and environment overrides, expands home-relative
// paths, and validates the result. A missing file is not an error; defaults
// plus environment are used instead.
func Load(path string) (*Config, string, error) {
	// Credentials commonly live in a .env during development. Missing file is fine.
	_ = godotenv.Load()

	if strings.TrimSpace(path) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = defaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, path, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, path, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.expandPaths(); err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")); v != "" {
		c.YouTube.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDSIGHT_NTFY_TOPIC")); v != "" {
		c.Notifications.NtfyTopic = v
	}
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Paths.DataDir, &c.Paths.LogDir, &c.Paths.StagingDir} {
		expanded, err := expandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// EnsureDirectories creates the data, log, and staging directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.StagingDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the annotated sample config to path, refusing to overwrite.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
