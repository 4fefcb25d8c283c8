package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, and any missing parent directories, with content.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteClip writes a placeholder scene video. Only stubbed probers read it.
func WriteClip(t testing.TB, path string) {
	t.Helper()
	WriteFile(t, path, append([]byte("\x00\x00\x00\x18ftypisom"), bytes.Repeat([]byte{0x42}, 48)...))
}

// WriteNarration writes a placeholder narration track of n silent bytes.
func WriteNarration(t testing.TB, path string, n int) {
	t.Helper()
	WriteFile(t, path, append([]byte("RIFF"), make([]byte, max(n, 1))...))
}
