package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trawler/internal/config"
)

const userAgent = "Trawler-Go/0.1.0"

// Event names a notable moment in the daemon's life.
type Event string

const (
	EventIngestStarted Event = "ingest_started"
	EventIngestStopped Event = "ingest_stopped"
	EventErrorPause    Event = "error_pause"
	EventMilestone     Event = "milestone"
	EventTest          Event = "test"
)

// Payload carries the string fields an event's message is built from.
type Payload map[string]string

// Service is the notification surface exposed to the pipeline and CLI.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
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
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		lifecycle:  cfg.Notifications.Lifecycle,
		errors:     cfg.Notifications.Errors,
		milestones: cfg.Notifications.Milestones,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	lifecycle  bool
	errors     bool
	milestones bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("notifications: unknown event %q", event)
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventIngestStarted, EventIngestStopped:
		return n.lifecycle
	case EventErrorPause:
		return n.errors
	case EventMilestone:
		return n.milestones
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventIngestStarted:
		return message{
			title: "Trawler - Ingest Started",
			body:  fmt.Sprintf("📥 Ingest started at sequence %s", orUnknown(get("cursor"))),
			tags:  []string{"trawler", "ingest", "started"},
		}, true
	case EventIngestStopped:
		body := fmt.Sprintf("Ingest stopped: %s matches persisted", orUnknown(get("persisted")))
		if uptime := get("uptime"); uptime != "" {
			body = fmt.Sprintf("%s in %s", body, uptime)
		}
		return message{
			title: "Trawler - Ingest Stopped",
			body:  body,
			tags:  []string{"trawler", "ingest", "stopped"},
		}, true
	case EventErrorPause:
		var builder strings.Builder
		builder.WriteString("⏸️ Ingest paused")
		if pause := get("pause"); pause != "" {
			builder.WriteString(" for ")
			builder.WriteString(pause)
		}
		builder.WriteString(": ")
		builder.WriteString(orUnknown(get("error")))
		return message{
			title:    "Trawler - Ingest Paused",
			body:     builder.String(),
			tags:     []string{"trawler", "error", "alert"},
			priority: "high",
		}, true
	case EventMilestone:
		return message{
			title: "Trawler - Milestone",
			body: fmt.Sprintf("✅ Kept %s of %s matches (%s)",
				orUnknown(get("persisted")), orUnknown(get("discovered")), orUnknown(get("rate"))),
			tags: []string{"trawler", "milestone"},
		}, true
	case EventTest:
		return message{
			title:    "Trawler - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"trawler", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
