package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"storyreel/internal/config"
)

const userAgent = "storyreel/0.1"

// Event identifies a notification kind.
type Event string

const (
	EventStoryCreated        Event = "story_created"
	EventGenerationCompleted Event = "generation_completed"
	EventExportCompleted     Event = "export_completed"
	EventError               Event = "error"
	EventTest                Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
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
		enabled: map[Event]bool{
			EventStoryCreated:        cfg.Notifications.Generation,
			EventGenerationCompleted: cfg.Notifications.Generation,
			EventExportCompleted:     cfg.Notifications.Export,
			EventError:               cfg.Notifications.Errors,
			EventTest:                true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventStoryCreated:
		return message{
			title: "storyreel - Story Ready",
			body:  fmt.Sprintf("📖 %s adapted into %s scenes", payload.text("title"), payload.text("scenes")),
			tags:  []string{"storyreel", "story"},
		}, true
	case EventGenerationCompleted:
		failed := payload.text("failed")
		title := "storyreel - Scenes Ready"
		body := fmt.Sprintf("🎬 %s: %s scenes generated in %s", payload.text("title"), payload.text("completed"), payload.text("duration"))
		if failed != "" && failed != "0" {
			title = "storyreel - Scenes Ready (with errors)"
			body = fmt.Sprintf("🎬 %s: %s generated, %s failed in %s", payload.text("title"), payload.text("completed"), failed, payload.text("duration"))
		}
		return message{title: title, body: body, tags: []string{"storyreel", "generate", "completed"}}, true
	case EventExportCompleted:
		body := fmt.Sprintf("✅ Exported: %s", payload.text("title"))
		if file := payload.text("file"); file != "" {
			body += "\nFile: " + file
		}
		return message{title: "storyreel - Export Complete", body: body, tags: []string{"storyreel", "export", "completed"}, priority: "high"}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" during ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if msg := payload.text("error"); msg != "" {
			b.WriteString(msg)
		} else {
			b.WriteString("unknown")
		}
		return message{title: "storyreel - Error", body: b.String(), tags: []string{"storyreel", "error", "alert"}, priority: "high"}, true
	case EventTest:
		return message{title: "storyreel - Test", body: "🧪 Notification system test", tags: []string{"storyreel", "test"}, priority: "low"}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case time.Duration:
		return value.Round(time.Second).String()
	case error:
		return strings.TrimSpace(value.Error())
	default:
		return fmt.Sprintf("%v", value)
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
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
