package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vidsight/internal/config"
	"vidsight/internal/pipeline"
)

const userAgent = "Vidsight/0.1.0"

// Service is the push-notification surface used for terminal job events.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID, videoTitle string, overallScore float64) error
	NotifyJobFailed(ctx context.Context, jobID string, step pipeline.Step, errorKind, message string) error
	NotifyJobCancelled(ctx context.Context, jobID string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID, videoTitle string, overallScore float64) error {
	videoTitle = strings.TrimSpace(videoTitle)
	if videoTitle == "" {
		videoTitle = jobID
	}
	data := payload{
		title:    "Vidsight - Analysis Complete",
		message:  fmt.Sprintf("Analysis complete: %s (score %.1f/100)", videoTitle, overallScore),
		tags:     []string{"vidsight", "job", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobID string, step pipeline.Step, errorKind, message string) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Job %s failed", jobID)
	if step != "" {
		fmt.Fprintf(&builder, " during %s", step)
	}
	if errorKind != "" {
		fmt.Fprintf(&builder, " (%s)", errorKind)
	}
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(": ")
		builder.WriteString(message)
	}
	data := payload{
		title:    "Vidsight - Analysis Failed",
		message:  builder.String(),
		tags:     []string{"vidsight", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobCancelled(ctx context.Context, jobID string) error {
	data := payload{
		title:   "Vidsight - Analysis Cancelled",
		message: fmt.Sprintf("Job %s was cancelled", jobID),
		tags:    []string{"vidsight", "job", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Vidsight - Test",
		message:  "Notification system test",
		tags:     []string{"vidsight", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, float64) error { return nil }
func (noopService) NotifyJobFailed(context.Context, string, pipeline.Step, string, string) error {
	return nil
}
func (noopService) NotifyJobCancelled(context.Context, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
