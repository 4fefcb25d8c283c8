package videogen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"storyreel/internal/services"
	"storyreel/internal/services/retry"
	"storyreel/internal/session"
)

type fakeBackend struct {
	t          *testing.T
	pollsUntil int32
	polls      atomic.Int32
	submitFail atomic.Int32
	opError    bool
	server     *httptest.Server
	submitted  predictRequest
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{t: t, pollsUntil: 2}
	fb.server = httptest.NewServer(http.HandlerFunc(fb.serve))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBackend) serve(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("x-goog-api-key") != "key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
		if fb.submitFail.Load() > 0 {
			fb.submitFail.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&fb.submitted)
		_, _ = w.Write([]byte(`{"name":"models/veo/operations/op1"}`))
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/operations/op1"):
		n := fb.polls.Add(1)
		if fb.pollsUntil < 0 || n < fb.pollsUntil {
			_, _ = w.Write([]byte(`{"name":"models/veo/operations/op1","done":false}`))
			return
		}
		if fb.opError {
			_, _ = w.Write([]byte(`{"name":"models/veo/operations/op1","done":true,"error":{"code":3,"message":"prompt rejected"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"name":"models/veo/operations/op1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"` + fb.server.URL + `/files/clip.mp4"}}]}}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/files/clip.mp4":
		_, _ = w.Write([]byte("mp4-bytes"))
	default:
		fb.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func testRef(t *testing.T) session.ReferenceImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.png")
	if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	return session.ReferenceImage{Path: path, MimeType: "image/png", StyleKey: "ink wash\x1fa fox in a red scarf"}
}

func newTestClient(fb *fakeBackend, maxWait time.Duration, now func() time.Time) *Client {
	return New(Config{
		APIKey:       "key",
		BaseURL:      fb.server.URL + "/v1beta/",
		Model:        "veo",
		PollInterval: time.Second,
		MaxWait:      maxWait,
	}, nil, nil,
		WithRetryPolicy(retry.Policy{Attempts: 3, Sleeper: func(time.Duration) {}}),
		WithClock(func(context.Context, time.Duration) error { return nil }, now),
	)
}

func TestRenderSceneVideoPollsAndDownloads(t *testing.T) {
	fb := newFakeBackend(t)
	fb.submitFail.Store(1)
	client := newTestClient(fb, 0, nil)
	dest := filepath.Join(t.TempDir(), "scene-01.mp4")
	scene := session.Scene{ID: 1, TextEn: "The fox ran.", VisualPrompt: "a fox running through snow"}

	if err := client.RenderSceneVideo(context.Background(), scene, testRef(t), session.DefaultSettings(), dest); err != nil {
		t.Fatalf("RenderSceneVideo: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "mp4-bytes" {
		t.Fatalf("unexpected output %q (%v)", data, err)
	}
	if got := fb.polls.Load(); got != 2 {
		t.Fatalf("expected 2 polls, got %d", got)
	}
	inst := fb.submitted.Instances[0]
	if inst.Image == nil || inst.Image.BytesBase64Encoded != "cG5n" {
		t.Fatalf("reference image not attached: %+v", inst.Image)
	}
	if !strings.Contains(inst.Prompt, "ink wash") || !strings.Contains(inst.Prompt, "a fox running through snow") {
		t.Fatalf("prompt missing scene or style: %q", inst.Prompt)
	}
	if fb.submitted.Parameters.AspectRatio != "16:9" {
		t.Fatalf("unexpected parameters %+v", fb.submitted.Parameters)
	}
}

func TestRenderSceneVideoTimesOut(t *testing.T) {
	fb := newFakeBackend(t)
	fb.pollsUntil = -1
	clock := time.Unix(0, 0)
	now := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	client := newTestClient(fb, 5*time.Minute, now)
	dest := filepath.Join(t.TempDir(), "scene-01.mp4")

	err := client.RenderSceneVideo(context.Background(), session.Scene{ID: 1, VisualPrompt: "x"}, testRef(t), session.DefaultSettings(), dest)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatalf("expected no output file, stat err %v", statErr)
	}
}

func TestRenderSceneVideoReportsOperationError(t *testing.T) {
	fb := newFakeBackend(t)
	fb.pollsUntil = 1
	fb.opError = true
	client := newTestClient(fb, 0, nil)

	err := client.RenderSceneVideo(context.Background(), session.Scene{ID: 1, VisualPrompt: "x"}, testRef(t), session.DefaultSettings(), filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrGeneration) || !strings.Contains(err.Error(), "prompt rejected") {
		t.Fatalf("expected generation error with backend message, got %v", err)
	}
}

func TestRenderSceneVideoRequiresReferenceFile(t *testing.T) {
	fb := newFakeBackend(t)
	client := newTestClient(fb, 0, nil)
	ref := session.ReferenceImage{Path: filepath.Join(t.TempDir(), "missing.png")}
	err := client.RenderSceneVideo(context.Background(), session.Scene{ID: 1}, ref, session.DefaultSettings(), filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}
