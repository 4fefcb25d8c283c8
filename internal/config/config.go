package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	StagingDir string `toml:"staging_dir"`
	ExportDir  string `toml:"export_dir"`
	LogDir     string `toml:"log_dir"`
}

// Story configures the story adaptation chat model.
type Story struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Image configures reference image generation.
type Image struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Quality        string `toml:"quality"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Speech configures narration synthesis.
type Speech struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	DefaultVoice   string `toml:"default_voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Video configures the long-running scene video backend.
type Video struct {
	APIKey                string `toml:"api_key"`
	BaseURL               string `toml:"base_url"`
	Model                 string `toml:"model"`
	PollIntervalSeconds   int    `toml:"poll_interval_seconds"`
	MaxWaitSeconds        int    `toml:"max_wait_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxRetries            int    `toml:"max_retries"`
}

// Export configures the compositor.
type Export struct {
	FFmpegBinary    string  `toml:"ffmpeg_binary"`
	FFprobeBinary   string  `toml:"ffprobe_binary"`
	FPS             int     `toml:"fps"`
	FontFile        string  `toml:"font_file"`
	SourceFontScale float64 `toml:"source_font_scale"`
	TargetFontScale float64 `toml:"target_font_scale"`
	CaptionGapScale float64 `toml:"caption_gap_scale"`
	VideoCodec      string  `toml:"video_codec"`
	AudioCodec      string  `toml:"audio_codec"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Generation     bool   `toml:"generation"`
	Export         bool   `toml:"export"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics controls the Prometheus textfile written after each command.
type Metrics struct {
	Textfile string `toml:"textfile"`
}

// Config encapsulates all configuration values for storyreel.
//
// Configuration sections by subsystem:
//   - Paths: session database, staged assets, exports, logs
//   - Story, Image, Speech, Video: generation backends
//   - Export: ffmpeg compositor settings
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
//   - Metrics: optional node-exporter textfile
type Config struct {
	Paths         Paths         `toml:"paths"`
	Story         Story         `toml:"story"`
	Image         Image         `toml:"image"`
	Speech        Speech        `toml:"speech"`
	Video         Video         `toml:"video"`
	Export        Export        `toml:"export"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and credentials resolved.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	dotenv, err := readDotEnv(filepath.Dir(resolvedPath))
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(dotenv); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state, staging, export, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.ExportDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite file holding sessions and the event log.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "storyreel.db")
}

// LockPath returns the lock file guarding the state directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "storyreel.lock")
}

// SessionStagingDir returns the directory holding one session's generated assets.
func (c *Config) SessionStagingDir(sessionID string) string {
	return filepath.Join(c.Paths.StagingDir, sessionID)
}

// FFmpegBinary returns the ffmpeg executable used for export.
func (c *Config) FFmpegBinary() string {
	if value := strings.TrimSpace(c.Export.FFmpegBinary); value != "" {
		return value
	}
	return defaultFFmpegBinary
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	if value := strings.TrimSpace(c.Export.FFprobeBinary); value != "" {
		return value
	}
	return defaultFFprobeBinary
}

// VideoPollInterval returns the scene video status polling interval.
func (c *Config) VideoPollInterval() time.Duration {
	return time.Duration(c.Video.PollIntervalSeconds) * time.Second
}

// VideoMaxWait bounds how long a single scene video may stay in progress.
func (c *Config) VideoMaxWait() time.Duration {
	return time.Duration(c.Video.MaxWaitSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
