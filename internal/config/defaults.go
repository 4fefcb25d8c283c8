package config

const (
	defaultConfigPath           = "~/.config/storyreel/config.toml"
	defaultStateDir             = "~/.local/share/storyreel"
	defaultStagingDir           = "~/.local/share/storyreel/staging"
	defaultExportDir            = "~/storyreel"
	defaultLogDir               = "~/.local/share/storyreel/logs"
	defaultOpenAIBaseURL        = "https://api.openai.com/v1"
	defaultStoryModel           = "gpt-4.1-mini"
	defaultImageModel           = "gpt-image-1"
	defaultImageQuality         = "medium"
	defaultSpeechModel          = "gpt-4o-mini-tts"
	defaultVoice                = "alloy"
	defaultVideoBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultVideoModel           = "veo-3.0-fast-generate-001"
	defaultVideoPollInterval    = 10
	defaultVideoMaxWait         = 900
	defaultVideoRequestTimeout  = 120
	defaultVideoMaxRetries      = 3
	defaultServiceTimeout       = 120
	defaultFFmpegBinary         = "ffmpeg"
	defaultFFprobeBinary        = "ffprobe"
	defaultExportFPS            = 30
	defaultSourceFontScale      = 0.045
	defaultTargetFontScale      = 0.04
	defaultCaptionGapScale      = 0.06
	defaultVideoCodec           = "libx264"
	defaultAudioCodec           = "aac"
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StagingDir: defaultStagingDir,
			ExportDir:  defaultExportDir,
			LogDir:     defaultLogDir,
		},
		Story: Story{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultStoryModel,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Image: Image{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultImageModel,
			Quality:        defaultImageQuality,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Speech: Speech{
			BaseURL:        defaultOpenAIBaseURL,
			Model:          defaultSpeechModel,
			DefaultVoice:   defaultVoice,
			TimeoutSeconds: defaultServiceTimeout,
		},
		Video: Video{
			BaseURL:               defaultVideoBaseURL,
			Model:                 defaultVideoModel,
			PollIntervalSeconds:   defaultVideoPollInterval,
			MaxWaitSeconds:        defaultVideoMaxWait,
			RequestTimeoutSeconds: defaultVideoRequestTimeout,
			MaxRetries:            defaultVideoMaxRetries,
		},
		Export: Export{
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
			FPS:             defaultExportFPS,
			SourceFontScale: defaultSourceFontScale,
			TargetFontScale: defaultTargetFontScale,
			CaptionGapScale: defaultCaptionGapScale,
			VideoCodec:      defaultVideoCodec,
			AudioCodec:      defaultAudioCodec,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Generation:     true,
			Export:         true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
