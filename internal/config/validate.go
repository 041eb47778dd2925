package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Invalid configuration is fatal
// at startup, never a per-job error.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateYouTube(); err != nil {
		return err
	}
	if err := c.validateOpenAI(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLog() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format: unsupported value %q", c.Log.Format)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.JobWorkerCount < 1 {
		return errors.New("workflow.job_worker_count must be at least 1")
	}
	if c.Workflow.StepTimeout < 1 {
		return errors.New("workflow.step_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout < 1 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.JobRetentionDays < 0 {
		return errors.New("workflow.job_retention_days must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.TransientMaxAttempts < 1 || c.Retry.RateLimitMaxAttempts < 1 {
		return errors.New("retry attempt budgets must be at least 1")
	}
	if c.Retry.TransientBackoffMS < 0 || c.Retry.RateLimitBackoffMS < 0 {
		return errors.New("retry backoff bases must not be negative")
	}
	return nil
}

func (c *Config) validateYouTube() error {
	if strings.TrimSpace(c.YouTube.BaseURL) == "" {
		return errors.New("youtube.base_url must be set")
	}
	if c.YouTube.MaxComments < 1 {
		return errors.New("youtube.max_comments must be positive")
	}
	return nil
}

func (c *Config) validateOpenAI() error {
	if strings.TrimSpace(c.OpenAI.TranscriptionModel) == "" {
		return errors.New("openai.transcription_model must be set")
	}
	if strings.TrimSpace(c.OpenAI.AnalysisModel) == "" {
		return errors.New("openai.analysis_model must be set")
	}
	return nil
}
