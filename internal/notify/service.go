package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conveyor/internal/config"
)

const userAgent = "Conveyor/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyJobFinished(ctx context.Context, jobUUID, owner string) error
	NotifyJobFailed(ctx context.Context, jobUUID, owner, reason string) error
	NotifyStageExhausted(ctx context.Context, jobUUID, stage, reason string) error
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
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		jobFinished:    cfg.Notifications.JobFinished,
		jobFailed:      cfg.Notifications.JobFailed,
		stageExhausted: cfg.Notifications.StageExhausted,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	jobFinished    bool
	jobFailed      bool
	stageExhausted bool
}

func (n *ntfyService) NotifyJobFinished(ctx context.Context, jobUUID, owner string) error {
	if !n.jobFinished {
		return nil
	}
	data := payload{
		title:   "Conveyor - Job Finished",
		message: fmt.Sprintf("Job %s for %s completed", jobUUID, owner),
		tags:    []string{"conveyor", "job", "finished"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, jobUUID, owner, reason string) error {
	if !n.jobFailed {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Conveyor - Job Failed",
		message:  fmt.Sprintf("Job %s for %s failed: %s", jobUUID, owner, reason),
		tags:     []string{"conveyor", "job", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageExhausted(ctx context.Context, jobUUID, stage, reason string) error {
	if !n.stageExhausted {
		return nil
	}
	data := payload{
		title:    "Conveyor - Retries Exhausted",
		message:  fmt.Sprintf("Job %s gave up at %s: %s", jobUUID, stage, strings.TrimSpace(reason)),
		tags:     []string{"conveyor", "stage", "exhausted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Conveyor - Test",
		message:  "Notification system test",
		tags:     []string{"conveyor", "test"},
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

func (noopService) NotifyJobFinished(context.Context, string, string) error { return nil }

func (noopService) NotifyJobFailed(context.Context, string, string, string) error { return nil }

func (noopService) NotifyStageExhausted(context.Context, string, string, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
