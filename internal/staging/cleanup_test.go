package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"storyreel/internal/logging"
	"storyreel/internal/testsupport"
)

func touch(t *testing.T, path string, size int) {
	t.Helper()
	testsupport.WriteFile(t, path, make([]byte, size))
}

func TestPruneSessionInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := PruneSession(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestPruneSessionKeepsReferencedAssets(t *testing.T) {
	dir := t.TempDir()
	keepVideo := filepath.Join(dir, "scene-01-aaaa1111.mp4")
	keepRef := filepath.Join(dir, "reference.png")
	stale := filepath.Join(dir, "scene-01-bbbb2222.mp4")
	for _, p := range []string{keepVideo, keepRef, stale} {
		touch(t, p, 1)
	}
	if err := os.Mkdir(filepath.Join(dir, "export-work"), 0o755); err != nil {
		t.Fatal(err)
	}

	referenced := map[string]struct{}{keepVideo: {}, keepRef: {}}
	result := PruneSession(context.Background(), dir, referenced, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("expected only %s removed, got %v", stale, result.Removed)
	}
	for _, p := range []string{keepVideo, keepRef, filepath.Join(dir, "export-work")} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should still exist: %v", p, err)
		}
	}
}

func TestCleanOrphanedRemovesUnknownSessions(t *testing.T) {
	tmpDir := t.TempDir()
	active := filepath.Join(tmpDir, "0b7c6a4e-active")
	orphan := filepath.Join(tmpDir, "deleted-session")
	touch(t, filepath.Join(active, "scene-01.mp4"), 1)
	touch(t, filepath.Join(orphan, "scene-01.mp4"), 1)
	touch(t, filepath.Join(tmpDir, "stray.txt"), 1)

	result := CleanOrphaned(context.Background(), tmpDir, map[string]struct{}{"0b7c6a4e-active": {}}, logging.NewNop())
	if len(result.Removed) != 1 || result.Removed[0] != orphan {
		t.Fatalf("expected orphan removed, got %v", result.Removed)
	}
	if _, err := os.Stat(active); err != nil {
		t.Error("active session directory should still exist")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "stray.txt")); err != nil {
		t.Error("files at staging root are not touched")
	}
}

func TestCleanOrphanedCaseInsensitive(t *testing.T) {
	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, "ABCDEF")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	result := CleanOrphaned(context.Background(), tmpDir, map[string]struct{}{"abcdef": {}}, logging.NewNop())
	if len(result.Removed) != 0 {
		t.Fatalf("expected no removals, got %v", result.Removed)
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	touch(t, filepath.Join(tmpDir, "s1", "a.mp4"), 100)
	touch(t, filepath.Join(tmpDir, "s1", "nested", "b.wav"), 50)
	touch(t, filepath.Join(tmpDir, "s2", "c.png"), 10)
	touch(t, filepath.Join(tmpDir, "file.txt"), 5)

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}
	if len(dirs) != 2 {
		t.Fatalf("expected 2 dirs, got %d", len(dirs))
	}
	sizes := map[string]int64{}
	for _, d := range dirs {
		sizes[d.Name] = d.Size
	}
	if sizes["s1"] != 150 || sizes["s2"] != 10 {
		t.Fatalf("unexpected sizes %v", sizes)
	}

	if dirs, err := ListDirectories("/nonexistent/path/12345"); err != nil || dirs != nil {
		t.Fatalf("expected nil for missing dir, got %v %v", dirs, err)
	}
}
