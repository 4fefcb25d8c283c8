package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateServices(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ExportDir) == "" {
		return errors.New("paths.export_dir must be set")
	}
	return nil
}

func (c *Config) validateServices() error {
	if err := ensurePositiveMap(map[string]int{
		"story.timeout_seconds":         c.Story.TimeoutSeconds,
		"image.timeout_seconds":         c.Image.TimeoutSeconds,
		"speech.timeout_seconds":        c.Speech.TimeoutSeconds,
		"video.poll_interval_seconds":   c.Video.PollIntervalSeconds,
		"video.max_wait_seconds":        c.Video.MaxWaitSeconds,
		"video.request_timeout_seconds": c.Video.RequestTimeoutSeconds,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Video.MaxWaitSeconds < c.Video.PollIntervalSeconds {
		return errors.New("video.max_wait_seconds must be at least video.poll_interval_seconds")
	}
	if c.Video.MaxRetries < 0 {
		return errors.New("video.max_retries must be >= 0")
	}
	switch c.Image.Quality {
	case "low", "medium", "high", "auto":
	default:
		return fmt.Errorf("image.quality must be low, medium, high, or auto (got %q)", c.Image.Quality)
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.FPS < 1 || c.Export.FPS > 120 {
		return fmt.Errorf("export.fps must be between 1 and 120 (got %d)", c.Export.FPS)
	}
	for key, value := range map[string]float64{
		"export.source_font_scale": c.Export.SourceFontScale,
		"export.target_font_scale": c.Export.TargetFontScale,
		"export.caption_gap_scale": c.Export.CaptionGapScale,
	} {
		if value <= 0 || value >= 1 {
			return fmt.Errorf("%s must be between 0 and 1 (exclusive)", key)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
}

// MissingCredentials lists the config keys whose API credentials are empty.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Story.APIKey == "" {
		missing = append(missing, "story.api_key")
	}
	if c.Image.APIKey == "" {
		missing = append(missing, "image.api_key")
	}
	if c.Speech.APIKey == "" {
		missing = append(missing, "speech.api_key")
	}
	if c.Video.APIKey == "" {
		missing = append(missing, "video.api_key")
	}
	return missing
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
