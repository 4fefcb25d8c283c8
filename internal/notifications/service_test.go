package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storyreel/internal/config"
	"storyreel/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventExportCompleted, notifications.Payload{"title": "Example"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "story created",
			event:         notifications.EventStoryCreated,
			payload:       notifications.Payload{"title": "Moby-Dick", "scenes": 4},
			expectTitle:   "storyreel - Story Ready",
			expectMessage: "📖 Moby-Dick adapted into 4 scenes",
			expectTags:    "storyreel,story",
		},
		{
			name:          "generation clean",
			event:         notifications.EventGenerationCompleted,
			payload:       notifications.Payload{"title": "Moby-Dick", "completed": 4, "failed": 0, "duration": 95 * time.Second},
			expectTitle:   "storyreel - Scenes Ready",
			expectMessage: "🎬 Moby-Dick: 4 scenes generated in 1m35s",
			expectTags:    "storyreel,generate,completed",
		},
		{
			name:          "generation with failures",
			event:         notifications.EventGenerationCompleted,
			payload:       notifications.Payload{"title": "Moby-Dick", "completed": 3, "failed": 1, "duration": time.Minute},
			expectTitle:   "storyreel - Scenes Ready (with errors)",
			expectMessage: "🎬 Moby-Dick: 3 generated, 1 failed in 1m0s",
			expectTags:    "storyreel,generate,completed",
		},
		{
			name:           "export completed",
			event:          notifications.EventExportCompleted,
			payload:        notifications.Payload{"title": "Moby-Dick", "file": "/exports/Moby-Dick.mp4"},
			expectTitle:    "storyreel - Export Complete",
			expectMessage:  "✅ Exported: Moby-Dick\nFile: /exports/Moby-Dick.mp4",
			expectTags:     "storyreel,export,completed",
			expectPriority: "high",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "export", "error": errors.New("scene 2 could not be decoded")},
			expectTitle:    "storyreel - Error",
			expectMessage:  "❌ Error during export: scene 2 could not be decoded",
			expectTags:     "storyreel,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Generation = true
			cfg.Notifications.Export = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresDisabledEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Generation = false
	cfg.Notifications.Export = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventStoryCreated,
		notifications.EventGenerationCompleted,
		notifications.EventExportCompleted,
		notifications.EventError,
		notifications.Event("unknown"),
	}
	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"title": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("topic reserved"))
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err == nil {
		t.Fatal("expected error for 403 response")
	}
}
