package retry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoRetriesServerErrorsWithBackoff(t *testing.T) {
	var delays []time.Duration
	p := Policy{Attempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Sleeper: func(d time.Duration) { delays = append(delays, d) }}
	calls := 0
	err := p.Do(context.Background(), "submit", func(context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(delays) != 2 || delays[0] != 100*time.Millisecond || delays[1] != 200*time.Millisecond {
		t.Fatalf("unexpected delays %v", delays)
	}
}

func TestDoHonoursRetryAfter(t *testing.T) {
	var delays []time.Duration
	p := Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Second, Sleeper: func(d time.Duration) { delays = append(delays, d) }}
	_ = p.Do(context.Background(), "poll", func(context.Context) error {
		return &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 3 * time.Second}
	})
	if len(delays) != 1 || delays[0] != 3*time.Second {
		t.Fatalf("expected Retry-After delay, got %v", delays)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := Policy{Attempts: 5, Sleeper: func(time.Duration) { t.Fatal("should not sleep") }}
	calls := 0
	err := p.Do(context.Background(), "submit", func(context.Context) error {
		calls++
		return &StatusError{StatusCode: http.StatusBadRequest, Body: "bad prompt"}
	})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoWrapsExhaustedAttempts(t *testing.T) {
	p := Policy{Attempts: 2, Sleeper: func(time.Duration) {}}
	err := p.Do(context.Background(), "download", func(context.Context) error {
		return &StatusError{StatusCode: http.StatusBadGateway}
	})
	if err == nil || !errors.As(err, new(*StatusError)) {
		t.Fatalf("expected wrapped status error, got %v", err)
	}
}

func TestNewStatusErrorReadsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("Retry-After", "7")
	rec.WriteHeader(http.StatusTooManyRequests)
	err := NewStatusError(rec.Result(), []byte(" slow down "))
	if err.RetryAfter != 7*time.Second || err.Body != "slow down" || !err.Retryable() {
		t.Fatalf("unexpected status error %+v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := ParseRetryAfter("2"); !ok || d != 2*time.Second {
		t.Fatalf("seconds form: %v %v", d, ok)
	}
	if _, ok := ParseRetryAfter("-1"); ok {
		t.Fatal("negative seconds should be rejected")
	}
	if _, ok := ParseRetryAfter("soon"); ok {
		t.Fatal("garbage should be rejected")
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	if got := Snippet(string(long)); len(got) != 163 {
		t.Fatalf("expected 160 chars plus ellipsis, got %d", len(got))
	}
	if Snippet("  ") != "<empty>" {
		t.Fatal("blank body should render as <empty>")
	}
}
