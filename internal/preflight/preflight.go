package preflight

import (
	"context"
	"strings"

	"storyreel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// RunAll executes the offline checks: directory access and key presence.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	_ = ctx

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Export directory", cfg.Paths.ExportDir),
	}
	results = append(results,
		CheckAPIKey("Story API key", cfg.Story.APIKey),
		CheckAPIKey("Image API key", cfg.Image.APIKey),
		CheckAPIKey("Speech API key", cfg.Speech.APIKey),
		CheckAPIKey("Video API key", cfg.Video.APIKey),
	)
	return results
}

// CheckAPIKey reports whether a credential is configured.
func CheckAPIKey(name, key string) Result {
	if strings.TrimSpace(key) == "" {
		return Result{Name: name, Detail: "missing (set it in config or .env)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}
