package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envOpenAIKey    = "OPENAI_API_KEY"
	envGeminiKey    = "GEMINI_API_KEY"
	envStoryreelKey = "STORYREEL_API_KEY"
)

func (c *Config) normalize(dotenv map[string]string) error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServices(dotenv)
	if err := c.normalizeExport(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	defaults := map[string]*string{
		defaultStateDir:   &c.Paths.StateDir,
		defaultStagingDir: &c.Paths.StagingDir,
		defaultExportDir:  &c.Paths.ExportDir,
		defaultLogDir:     &c.Paths.LogDir,
	}
	for fallback, field := range defaults {
		if strings.TrimSpace(*field) == "" {
			*field = fallback
		}
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.ExportDir, err = expandPath(c.Paths.ExportDir); err != nil {
		return fmt.Errorf("paths.export_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile); c.Metrics.Textfile != "" {
		if c.Metrics.Textfile, err = expandPath(c.Metrics.Textfile); err != nil {
			return fmt.Errorf("metrics.textfile: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeServices(dotenv map[string]string) {
	c.Story.APIKey = resolveSecret(c.Story.APIKey, dotenv, envOpenAIKey, envStoryreelKey)
	c.Image.APIKey = resolveSecret(c.Image.APIKey, dotenv, envOpenAIKey, envStoryreelKey)
	c.Speech.APIKey = resolveSecret(c.Speech.APIKey, dotenv, envOpenAIKey, envStoryreelKey)
	c.Video.APIKey = resolveSecret(c.Video.APIKey, dotenv, envGeminiKey, envStoryreelKey)

	c.Story.BaseURL = trimOr(c.Story.BaseURL, defaultOpenAIBaseURL)
	c.Story.Model = trimOr(c.Story.Model, defaultStoryModel)
	if c.Story.TimeoutSeconds <= 0 {
		c.Story.TimeoutSeconds = defaultServiceTimeout
	}

	c.Image.BaseURL = trimOr(c.Image.BaseURL, defaultOpenAIBaseURL)
	c.Image.Model = trimOr(c.Image.Model, defaultImageModel)
	c.Image.Quality = strings.ToLower(trimOr(c.Image.Quality, defaultImageQuality))
	if c.Image.TimeoutSeconds <= 0 {
		c.Image.TimeoutSeconds = defaultServiceTimeout
	}

	c.Speech.BaseURL = trimOr(c.Speech.BaseURL, defaultOpenAIBaseURL)
	c.Speech.Model = trimOr(c.Speech.Model, defaultSpeechModel)
	c.Speech.DefaultVoice = strings.ToLower(trimOr(c.Speech.DefaultVoice, defaultVoice))
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = defaultServiceTimeout
	}

	c.Video.BaseURL = strings.TrimRight(trimOr(c.Video.BaseURL, defaultVideoBaseURL), "/")
	c.Video.Model = trimOr(c.Video.Model, defaultVideoModel)
	if c.Video.RequestTimeoutSeconds <= 0 {
		c.Video.RequestTimeoutSeconds = defaultVideoRequestTimeout
	}
}

func (c *Config) normalizeExport() error {
	c.Export.FFmpegBinary = trimOr(c.Export.FFmpegBinary, defaultFFmpegBinary)
	c.Export.FFprobeBinary = trimOr(c.Export.FFprobeBinary, defaultFFprobeBinary)
	c.Export.VideoCodec = trimOr(c.Export.VideoCodec, defaultVideoCodec)
	c.Export.AudioCodec = trimOr(c.Export.AudioCodec, defaultAudioCodec)
	if c.Export.FontFile = strings.TrimSpace(c.Export.FontFile); c.Export.FontFile != "" {
		expanded, err := expandPath(c.Export.FontFile)
		if err != nil {
			return fmt.Errorf("export.font_file: %w", err)
		}
		c.Export.FontFile = expanded
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// resolveSecret prefers the process environment, then the config file value,
// then a .env entry.
func resolveSecret(current string, dotenv map[string]string, keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	if trimmed := strings.TrimSpace(current); trimmed != "" {
		return trimmed
	}
	for _, key := range keys {
		if value := strings.TrimSpace(dotenv[key]); value != "" {
			return value
		}
	}
	return ""
}

// readDotEnv merges .env files from the config directory and the working
// directory. Entries from the config directory win.
func readDotEnv(configDir string) (map[string]string, error) {
	merged := make(map[string]string)
	candidates := []string{}
	if strings.TrimSpace(configDir) != "" {
		candidates = append(candidates, filepath.Join(configDir, ".env"))
	}
	if cwd, err := filepath.Abs(".env"); err == nil {
		candidates = append(candidates, cwd)
	}
	seen := make(map[string]struct{}, len(candidates))
	for _, path := range candidates {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for key, value := range values {
			if _, exists := merged[key]; !exists {
				merged[key] = value
			}
		}
	}
	return merged, nil
}

func trimOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
