package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courier/internal/config"
)

const userAgent = "Courier-Go/0.1.0"

// Service defines the notification surface exposed to relay components.
type Service interface {
	NotifyBatchStarted(ctx context.Context, userID int64, count int) error
	NotifyBatchCompleted(ctx context.Context, userID int64, processed, failed int, duration time.Duration) error
	NotifyBatchAborted(ctx context.Context, userID int64, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
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
		enabled:  cfg.Notifications,
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
	enabled  config.Notifications
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, userID int64, count int) error {
	if !n.enabled.BatchStarted {
		return nil
	}
	data := payload{
		title:   "Courier - Batch Started",
		message: fmt.Sprintf("Relaying %d messages for user %d", count, userID),
		tags:    []string{"courier", "batch", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, userID int64, processed, failed int, duration time.Duration) error {
	if !n.enabled.BatchCompleted {
		return nil
	}
	data := payload{
		title: "Courier - Batch Complete",
		message: fmt.Sprintf("User %d: %d relayed, %d failed in %s",
			userID, processed-failed, failed, duration.Round(time.Second)),
		tags: []string{"courier", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchAborted(ctx context.Context, userID int64, reason string) error {
	if !n.enabled.Errors {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Courier - Batch Aborted",
		message:  fmt.Sprintf("User %d batch aborted: %s", userID, reason),
		tags:     []string{"courier", "batch", "aborted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, context string) error {
	if !n.enabled.Errors {
		return nil
	}
	message := "Unexpected error"
	if err != nil {
		message = err.Error()
	}
	if context = strings.TrimSpace(context); context != "" {
		message = fmt.Sprintf("%s: %s", context, message)
	}
	data := payload{
		title:    "Courier - Error",
		message:  message,
		tags:     []string{"courier", "error"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:   "Courier - Test",
		message: "Notifications are working",
		tags:    []string{"courier", "test"},
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

func (noopService) NotifyBatchStarted(context.Context, int64, int) error { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int64, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyBatchAborted(context.Context, int64, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error        { return nil }
func (noopService) TestNotification(context.Context) error                  { return nil }

// Noop returns a Service that discards every notification. Useful for tests.
func Noop() Service { return noopService{} }
