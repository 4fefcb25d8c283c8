package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"storyreel/internal/config"
)

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "STORYREEL_API_KEY"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearCredentialEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "storyreel")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "storyreel.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.Export.FPS != 30 {
		t.Fatalf("expected 30 fps default, got %d", cfg.Export.FPS)
	}
	if cfg.VideoMaxWait() != 900*time.Second {
		t.Fatalf("unexpected max wait: %s", cfg.VideoMaxWait())
	}
	if got := cfg.MissingCredentials(); len(got) != 4 {
		t.Fatalf("expected all credentials missing, got %v", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.StagingDir, cfg.Paths.ExportDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearCredentialEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "storyreel.toml")

	type payload struct {
		Video struct {
			PollIntervalSeconds int    `toml:"poll_interval_seconds"`
			MaxWaitSeconds      int    `toml:"max_wait_seconds"`
			Model               string `toml:"model"`
		} `toml:"video"`
		Export struct {
			FPS int `toml:"fps"`
		} `toml:"export"`
		Paths struct {
			StateDir string `toml:"state_dir"`
		} `toml:"paths"`
	}
	custom := payload{}
	custom.Video.PollIntervalSeconds = 2
	custom.Video.MaxWaitSeconds = 60
	custom.Video.Model = "veo-custom"
	custom.Export.FPS = 24
	custom.Paths.StateDir = filepath.Join(tempDir, "state")
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.VideoPollInterval() != 2*time.Second || cfg.VideoMaxWait() != time.Minute {
		t.Fatalf("unexpected video timing: %s / %s", cfg.VideoPollInterval(), cfg.VideoMaxWait())
	}
	if cfg.Video.Model != "veo-custom" {
		t.Fatalf("expected model override, got %q", cfg.Video.Model)
	}
	if cfg.Export.FPS != 24 {
		t.Fatalf("expected fps 24, got %d", cfg.Export.FPS)
	}
	if cfg.Paths.StateDir != filepath.Join(tempDir, "state") {
		t.Fatalf("unexpected state dir %q", cfg.Paths.StateDir)
	}
}

func TestCredentialPrecedence(t *testing.T) {
	clearCredentialEnv(t)
	tempDir := t.TempDir()
	t.Chdir(t.TempDir())
	configPath := filepath.Join(tempDir, "storyreel.toml")
	if err := os.WriteFile(configPath, []byte("[story]\napi_key = \"file-story\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	dotenv := "OPENAI_API_KEY=dotenv-openai\nGEMINI_API_KEY=dotenv-gemini\n"
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte(dotenv), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Story.APIKey != "file-story" {
		t.Errorf("expected file value to beat .env, got %q", cfg.Story.APIKey)
	}
	if cfg.Image.APIKey != "dotenv-openai" {
		t.Errorf("expected .env to fill empty image key, got %q", cfg.Image.APIKey)
	}
	if cfg.Video.APIKey != "dotenv-gemini" {
		t.Errorf("expected .env to fill empty video key, got %q", cfg.Video.APIKey)
	}

	t.Setenv("OPENAI_API_KEY", "env-openai")
	cfg, _, _, err = config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Story.APIKey != "env-openai" || cfg.Speech.APIKey != "env-openai" {
		t.Errorf("expected environment to override, got story=%q speech=%q", cfg.Story.APIKey, cfg.Speech.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"fps", func(c *config.Config) { c.Export.FPS = 0 }, "export.fps"},
		{"max wait", func(c *config.Config) { c.Video.MaxWaitSeconds = 1; c.Video.PollIntervalSeconds = 5 }, "video.max_wait_seconds"},
		{"font scale", func(c *config.Config) { c.Export.SourceFontScale = 1.5 }, "export.source_font_scale"},
		{"quality", func(c *config.Config) { c.Image.Quality = "ultra" }, "image.quality"},
		{"level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.StateDir = t.TempDir()
			cfg.Paths.StagingDir = t.TempDir()
			cfg.Paths.ExportDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	clearCredentialEnv(t)
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[video]") {
		t.Fatal("expected sample config to include video section")
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}
