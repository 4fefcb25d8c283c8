package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storyreel/internal/metrics"
	"storyreel/internal/services"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type speechBody struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func TestSynthesizeReturnsPCM(t *testing.T) {
	var got speechBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if accept := r.Header.Get("Accept"); accept != "application/octet-stream" {
			t.Errorf("unexpected Accept header %q", accept)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{1, 0, 2, 0, 3})
	}))
	defer server.Close()

	m := metrics.New()
	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1/", Model: "tts", DefaultVoice: "alloy"}, nil, m)
	pcm, err := client.Synthesize(context.Background(), "Call me Ishmael.", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("expected trailing odd byte trimmed, got %d bytes", len(pcm))
	}
	if got.Model != "tts" || got.Voice != "alloy" || got.ResponseFormat != "pcm" || got.Input != "Call me Ishmael." {
		t.Fatalf("unexpected request %+v", got)
	}
	if v := testutil.ToFloat64(m.ServiceCalls.WithLabelValues("speech", metrics.ResultSuccess)); v != 1 {
		t.Fatalf("expected one successful speech call, got %v", v)
	}
}

func TestSynthesizeFailureIsGenerationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "test", BaseURL: server.URL + "/v1/", Model: "tts"}, nil, nil)
	if _, err := client.Synthesize(context.Background(), "Hello.", "nobody"); !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	client := New(Config{APIKey: "test", Model: "tts"}, nil, nil)
	if _, err := client.Synthesize(context.Background(), "  ", "alloy"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
