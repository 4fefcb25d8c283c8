// Package videogen drives a long-running image-to-video REST operation:
// submit, poll until done, download.
package videogen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"storyreel/internal/fileutil"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/services/retry"
	"storyreel/internal/session"
)

const stageName = "video"

// Config captures the video backend settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	PollInterval   time.Duration
	MaxWait        time.Duration
	RequestTimeout time.Duration
	MaxRetries     int
}

// Client renders scene videos.
type Client struct {
	cfg     Config
	http    *http.Client
	policy  retry.Policy
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(cl *Client) { cl.policy = p }
}

// WithClock overrides the poll sleep and wall clock.
func WithClock(sleep func(context.Context, time.Duration) error, now func() time.Time) Option {
	return func(cl *Client) {
		if sleep != nil {
			cl.sleep = sleep
		}
		if now != nil {
			cl.now = now
		}
	}
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		policy:  retry.DefaultPolicy(cfg.MaxRetries),
		sleep:   retry.Sleep,
		now:     time.Now,
		logger:  logging.NewComponentLogger(logger, "videogen"),
		metrics: m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	Instances  []instance `json:"instances"`
	Parameters parameters `json:"parameters"`
}

type instance struct {
	Prompt string      `json:"prompt"`
	Image  *inlineData `json:"image,omitempty"`
}

type inlineData struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type parameters struct {
	AspectRatio string `json:"aspectRatio"`
	Resolution  string `json:"resolution,omitempty"`
}

type operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *operationError `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RaiMediaFilteredReasons []string `json:"raiMediaFilteredReasons,omitempty"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Prompt composes the video prompt from the scene and the style the
// reference image was rendered from.
func Prompt(scene session.Scene, ref session.ReferenceImage) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(scene.VisualPrompt))
	style, character, _ := strings.Cut(ref.StyleKey, "\x1f")
	if style = strings.TrimSpace(style); style != "" {
		fmt.Fprintf(&b, "\nArt direction: %s.", strings.TrimRight(style, ". "))
	}
	if character = strings.TrimSpace(character); character != "" {
		fmt.Fprintf(&b, "\nThe protagonist matches the reference image: %s.", strings.TrimRight(character, ". "))
	}
	if text := strings.TrimSpace(scene.TextEn); text != "" {
		fmt.Fprintf(&b, "\nThe scene illustrates: %q. No on-screen text, no dialogue.", text)
	}
	return b.String()
}

// RenderSceneVideo generates the scene's clip and writes it to dest.
func (c *Client) RenderSceneVideo(ctx context.Context, scene session.Scene, ref session.ReferenceImage, settings session.VideoSettings, dest string) error {
	start := c.now()
	err := c.render(ctx, scene, ref, settings, dest)
	c.metrics.ObserveService(stageName, err, c.now().Sub(start))
	return err
}

func (c *Client) render(ctx context.Context, scene session.Scene, ref session.ReferenceImage, settings session.VideoSettings, dest string) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return services.Wrap(services.ErrConfiguration, stageName, "submit", "video api key not configured", nil)
	}
	image, err := os.ReadFile(ref.Path)
	if err != nil {
		return services.Wrap(services.ErrPrecondition, stageName, "submit", "read reference image", err)
	}
	mime := ref.MimeType
	if mime == "" {
		mime = "image/png"
	}
	req := predictRequest{
		Instances: []instance{{
			Prompt: Prompt(scene, ref),
			Image:  &inlineData{BytesBase64Encoded: base64.StdEncoding.EncodeToString(image), MimeType: mime},
		}},
		Parameters: parameters{AspectRatio: string(settings.AspectRatio), Resolution: string(settings.Resolution)},
	}

	logger := logging.WithContext(ctx, c.logger)
	var op operation
	submitURL := fmt.Sprintf("%s/models/%s:predictLongRunning", c.cfg.BaseURL, c.cfg.Model)
	if err := c.policy.Do(ctx, "submit video", func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPost, submitURL, req, &op)
	}); err != nil {
		return services.Wrap(services.ErrGeneration, stageName, "submit", "video request rejected", err)
	}
	if op.Name == "" {
		return services.Wrap(services.ErrGeneration, stageName, "submit", "backend returned no operation name", nil)
	}
	logger.Debug("video operation submitted", logging.String("operation", op.Name))

	op, err = c.wait(ctx, op)
	if err != nil {
		return err
	}
	uri, err := videoURI(op)
	if err != nil {
		return err
	}
	if err := c.download(ctx, uri, dest); err != nil {
		return err
	}
	logger.Info("scene video rendered",
		logging.String(logging.FieldEventType, "scene_video_rendered"),
		logging.String("operation", op.Name),
		logging.String("path", dest),
	)
	return nil
}

// wait polls the operation at PollInterval. MaxWait bounds the total time;
// zero waits until ctx is done.
func (c *Client) wait(ctx context.Context, op operation) (operation, error) {
	deadline := time.Time{}
	if c.cfg.MaxWait > 0 {
		deadline = c.now().Add(c.cfg.MaxWait)
	}
	pollURL := fmt.Sprintf("%s/%s", c.cfg.BaseURL, strings.TrimLeft(op.Name, "/"))
	for !op.Done {
		if !deadline.IsZero() && !c.now().Before(deadline) {
			return op, services.Wrap(services.ErrTimeout, stageName, "poll",
				fmt.Sprintf("video not ready after %s", c.cfg.MaxWait), nil)
		}
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			return op, err
		}
		name := op.Name
		var next operation
		if err := c.policy.Do(ctx, "poll video", func(ctx context.Context) error {
			return c.doJSON(ctx, http.MethodGet, pollURL, nil, &next)
		}); err != nil {
			return op, services.Wrap(services.ErrGeneration, stageName, "poll", "poll video operation", err)
		}
		if next.Name == "" {
			next.Name = name
		}
		op = next
	}
	if op.Error != nil {
		return op, services.Wrap(services.ErrGeneration, stageName, "poll",
			fmt.Sprintf("backend reported failure (code %d): %s", op.Error.Code, op.Error.Message), nil)
	}
	return op, nil
}

func videoURI(op operation) (string, error) {
	if op.Response == nil {
		return "", services.Wrap(services.ErrGeneration, stageName, "result", "operation finished without a response", nil)
	}
	res := op.Response.GenerateVideoResponse
	if len(res.GeneratedSamples) == 0 || strings.TrimSpace(res.GeneratedSamples[0].Video.URI) == "" {
		msg := "no video produced"
		if len(res.RaiMediaFilteredReasons) > 0 {
			msg = "video filtered: " + strings.Join(res.RaiMediaFilteredReasons, "; ")
		}
		return "", services.Wrap(services.ErrGeneration, stageName, "result", msg, nil)
	}
	return res.GeneratedSamples[0].Video.URI, nil
}

func (c *Client) download(ctx context.Context, uri, dest string) error {
	var data []byte
	err := c.policy.Do(ctx, "download video", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return err
		}
		req.Header.Set("x-goog-api-key", c.cfg.APIKey)
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retry.NewStatusError(resp, body)
		}
		data = body
		return nil
	})
	if err != nil {
		return services.Wrap(services.ErrGeneration, stageName, "download", "download video", err)
	}
	if len(data) == 0 {
		return services.Wrap(services.ErrGeneration, stageName, "download", "downloaded video is empty", nil)
	}
	if err := fileutil.WriteFileAtomic(dest, data, 0o644); err != nil {
		return services.Wrap(services.ErrGeneration, stageName, "download", "write video", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return retry.NewStatusError(resp, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w (body: %s)", err, retry.Snippet(string(raw)))
	}
	return nil
}
