package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"storyreel/internal/config"
	"storyreel/internal/deps"
)

const reachabilityTimeout = 10 * time.Second

// CheckOpenAI verifies an OpenAI-compatible endpoint accepts the key by
// listing models.
func CheckOpenAI(ctx context.Context, name, baseURL, apiKey string) Result {
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	return checkEndpoint(ctx, name, strings.TrimRight(strings.TrimSpace(baseURL), "/")+"/models", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(apiKey))
	})
}

// CheckVideoBackend verifies the video model is visible to the key.
func CheckVideoBackend(ctx context.Context, baseURL, model, apiKey string) Result {
	const name = "Video backend"
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	url := fmt.Sprintf("%s/models/%s", strings.TrimRight(strings.TrimSpace(baseURL), "/"), strings.TrimSpace(model))
	return checkEndpoint(ctx, name, url, func(req *http.Request) {
		req.Header.Set("x-goog-api-key", strings.TrimSpace(apiKey))
	})
}

func checkEndpoint(ctx context.Context, name, url string, auth func(*http.Request)) Result {
	checkCtx, cancel := context.WithTimeout(ctx, reachabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	auth(req)
	resp, err := (&http.Client{Timeout: reachabilityTimeout}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return Result{Name: name, Passed: true, Detail: "API reachable"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode == http.StatusNotFound:
		return Result{Name: name, Detail: "endpoint or model not found"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries for the given config.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries(deps.ExportRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary()))
	if len(statuses) > 0 && statuses[0].Available {
		statuses = append(statuses, deps.CheckDrawtext(ctx, cfg.FFmpegBinary()))
	}
	return statuses
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return err.Error()
}
