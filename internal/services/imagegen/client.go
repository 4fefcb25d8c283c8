// Package imagegen renders the reference image that anchors the visual
// style and protagonist of every scene video.
package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

const stageName = "image"

// Config captures the image backend settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Quality string
	Timeout time.Duration
}

// Client generates reference images.
type Client struct {
	api     openai.Client
	model   string
	quality string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	opts = append(opts, extra...)
	return &Client{
		api:     openai.NewClient(opts...),
		model:   strings.TrimSpace(cfg.Model),
		quality: strings.TrimSpace(cfg.Quality),
		logger:  logging.NewComponentLogger(logger, "imagegen"),
		metrics: m,
	}
}

// Prompt composes the reference image prompt from the story's style fields.
func Prompt(story session.Story) string {
	var b strings.Builder
	b.WriteString("Character reference sheet for an illustrated film adaptation")
	if title := strings.TrimSpace(story.Title); title != "" {
		fmt.Fprintf(&b, " of %q", title)
	}
	b.WriteString(". Show the protagonist full body in a neutral pose, no text or captions.")
	if desc := strings.TrimSpace(story.CharacterDescription); desc != "" {
		fmt.Fprintf(&b, "\nProtagonist: %s.", strings.TrimRight(desc, ". "))
	}
	if style := strings.TrimSpace(story.VisualStyle); style != "" {
		fmt.Fprintf(&b, "\nArt direction: %s.", strings.TrimRight(style, ". "))
	}
	return b.String()
}

// Size maps an aspect ratio to the closest supported image size.
func Size(aspect session.AspectRatio) openai.ImageGenerateParamsSize {
	if aspect == session.AspectPortrait {
		return openai.ImageGenerateParamsSize1024x1536
	}
	return openai.ImageGenerateParamsSize1536x1024
}

// RenderReferenceImage returns PNG bytes for the story's reference image.
func (c *Client) RenderReferenceImage(ctx context.Context, story session.Story, settings session.VideoSettings) ([]byte, error) {
	if strings.TrimSpace(story.VisualStyle) == "" && strings.TrimSpace(story.CharacterDescription) == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "prompt", "story has no visual style or character description", nil)
	}
	params := openai.ImageGenerateParams{
		Prompt:       Prompt(story),
		Model:        openai.ImageModel(c.model),
		N:            openai.Int(1),
		Size:         Size(settings.AspectRatio),
		OutputFormat: openai.ImageGenerateParamsOutputFormatPNG,
	}
	if c.quality != "" {
		params.Quality = openai.ImageGenerateParamsQuality(c.quality)
	}

	start := time.Now()
	resp, err := c.api.Images.Generate(ctx, params)
	c.metrics.ObserveService(stageName, err, time.Since(start))
	if err != nil {
		return nil, services.Wrap(services.ErrGeneration, stageName, "generate", "image request failed", err)
	}
	if resp == nil || len(resp.Data) == 0 || strings.TrimSpace(resp.Data[0].B64JSON) == "" {
		return nil, services.Wrap(services.ErrGeneration, stageName, "generate", "backend returned no image", nil)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, services.Wrap(services.ErrGeneration, stageName, "decode", "image payload is not base64", err)
	}
	logging.WithContext(ctx, c.logger).Info("reference image generated",
		logging.String(logging.FieldEventType, "reference_image_generated"),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return data, nil
}
