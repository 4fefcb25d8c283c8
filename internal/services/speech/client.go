// Package speech synthesizes narration sentences as raw PCM.
package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
)

const (
	stageName = "speech"
	// PCMSampleRate is the rate of the backend's pcm response format.
	PCMSampleRate = 24000
)

// Config captures the speech backend settings.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	DefaultVoice string
	Timeout      time.Duration
	MaxRetries   int
}

// Client calls the text-to-speech endpoint.
type Client struct {
	api          openai.Client
	model        string
	defaultVoice string
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// New constructs a Client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	opts = append(opts, extra...)
	return &Client{
		api:          openai.NewClient(opts...),
		model:        strings.TrimSpace(cfg.Model),
		defaultVoice: strings.TrimSpace(cfg.DefaultVoice),
		logger:       logging.NewComponentLogger(logger, "speech"),
		metrics:      m,
	}
}

// Synthesize returns 16-bit little-endian mono PCM at PCMSampleRate.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, stageName, "synthesize", "empty text", nil)
	}
	voice = strings.TrimSpace(voice)
	if voice == "" {
		voice = c.defaultVoice
	}

	start := time.Now()
	pcm, err := c.speak(ctx, openai.AudioSpeechNewParams{
		Model:          c.model,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatPCM,
	})
	c.metrics.ObserveService(stageName, err, time.Since(start))
	if err != nil {
		return nil, services.Wrap(services.ErrGeneration, stageName, "synthesize", "speech request failed", err)
	}
	if len(pcm) == 0 {
		return nil, services.Wrap(services.ErrGeneration, stageName, "synthesize", "backend returned no audio", nil)
	}
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	c.logger.Debug("sentence synthesized",
		logging.String("voice", voice),
		logging.Int("chars", len(text)),
		logging.Int("bytes", len(pcm)),
	)
	return pcm, nil
}

func (c *Client) speak(ctx context.Context, params openai.AudioSpeechNewParams) ([]byte, error) {
	resp, err := c.api.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}
