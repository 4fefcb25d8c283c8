package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"storyreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "export", "concat", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"export", "concat", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("plain"), "internal"},
		{services.Wrap(services.ErrInput, "story-gen", "adapt", "bad json", nil), "input"},
		{services.Wrap(services.ErrPrecondition, "video-gen", "regenerate", "no reference", nil), "precondition"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrExport, "export", "probe", "", nil)), "export"},
		{services.Wrap(services.ErrGeneration, "video-gen", "scene", "", services.ErrTimeout), "timeout"},
		{services.Wrap(services.ErrGeneration, "video-gen", "scene", "", errors.New("500")), "generation"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q want %q", tc.err, got, tc.want)
		}
	}
}

func TestHintFallsBack(t *testing.T) {
	if hint := services.Hint(errors.New("x")); hint != "check logs for details" {
		t.Fatalf("unexpected hint %q", hint)
	}
	if hint := services.Hint(services.ErrBusy); !strings.Contains(hint, "wait") {
		t.Fatalf("unexpected busy hint %q", hint)
	}
}
