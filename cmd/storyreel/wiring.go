package main

import (
	"log/slog"
	"time"

	"storyreel/internal/compositor"
	"storyreel/internal/config"
	"storyreel/internal/metrics"
	"storyreel/internal/narration"
	"storyreel/internal/notifications"
	"storyreel/internal/services/imagegen"
	"storyreel/internal/services/speech"
	"storyreel/internal/services/storyllm"
	"storyreel/internal/services/videogen"
	"storyreel/internal/workflow"
)

func buildDependencies(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) workflow.Dependencies {
	story := storyllm.New(storyllm.Config{
		APIKey:  cfg.Story.APIKey,
		BaseURL: cfg.Story.BaseURL,
		Model:   cfg.Story.Model,
		Timeout: seconds(cfg.Story.TimeoutSeconds),
	}, logger, m)

	image := imagegen.New(imagegen.Config{
		APIKey:  cfg.Image.APIKey,
		BaseURL: cfg.Image.BaseURL,
		Model:   cfg.Image.Model,
		Quality: cfg.Image.Quality,
		Timeout: seconds(cfg.Image.TimeoutSeconds),
	}, logger, m)

	tts := speech.New(speech.Config{
		APIKey:       cfg.Speech.APIKey,
		BaseURL:      cfg.Speech.BaseURL,
		Model:        cfg.Speech.Model,
		DefaultVoice: cfg.Speech.DefaultVoice,
		Timeout:      seconds(cfg.Speech.TimeoutSeconds),
	}, logger, m)

	video := videogen.New(videogen.Config{
		APIKey:         cfg.Video.APIKey,
		BaseURL:        cfg.Video.BaseURL,
		Model:          cfg.Video.Model,
		PollInterval:   cfg.VideoPollInterval(),
		MaxWait:        cfg.VideoMaxWait(),
		RequestTimeout: seconds(cfg.Video.RequestTimeoutSeconds),
		MaxRetries:     cfg.Video.MaxRetries,
	}, logger, m)

	style := compositor.CaptionStyle{
		SourceScale: cfg.Export.SourceFontScale,
		TargetScale: cfg.Export.TargetFontScale,
		GapScale:    cfg.Export.CaptionGapScale,
		MarginScale: compositor.DefaultCaptionStyle().MarginScale,
	}

	return workflow.Dependencies{
		Story:    story,
		Image:    image,
		Video:    video,
		Narrator: narration.NewBuilder(tts, narration.NewVoiceTable(cfg.Speech.DefaultVoice), speech.PCMSampleRate, logger),
		Prober:   compositor.FFprobe{Binary: cfg.FFprobeBinary()},
		NewRecorder: func(workDir string) compositor.Recorder {
			return compositor.NewFFmpegRecorder(compositor.FFmpegOptions{
				Binary:     cfg.FFmpegBinary(),
				WorkDir:    workDir,
				FontFile:   cfg.Export.FontFile,
				Style:      style,
				VideoCodec: cfg.Export.VideoCodec,
				AudioCodec: cfg.Export.AudioCodec,
				Logger:     logger,
			})
		},
		Notifier: notifications.NewService(cfg),
		Metrics:  m,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
