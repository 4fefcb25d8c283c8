package narration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"storyreel/internal/fileutil"
	"storyreel/internal/logging"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

// Synthesizer produces raw 16-bit little-endian mono PCM for one sentence.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// Narration is a synthesized track held in memory.
type Narration struct {
	PCM        []byte
	SampleRate int
	Voice      string
	Duration   float64
	Subtitles  []session.SubtitleLine
}

// Track is a narration written to disk.
type Track struct {
	AudioPath string
	Voice     string
	Duration  float64
	Subtitles []session.SubtitleLine
}

// Builder assembles narration tracks.
type Builder struct {
	speech     Synthesizer
	voices     VoiceTable
	sampleRate int
	parallel   int
	logger     *slog.Logger
}

// NewBuilder constructs a Builder. sampleRate must match the PCM the
// synthesizer returns.
func NewBuilder(speech Synthesizer, voices VoiceTable, sampleRate int, logger *slog.Logger) *Builder {
	return &Builder{
		speech:     speech,
		voices:     voices,
		sampleRate: sampleRate,
		parallel:   3,
		logger:     logging.NewComponentLogger(logger, "narration"),
	}
}

// Build synthesizes textEn sentence by sentence and times the captions.
// Sentences are requested concurrently but concatenated in text order.
func (b *Builder) Build(ctx context.Context, textEn, textZh, mood string) (Narration, error) {
	if b == nil || b.speech == nil {
		return Narration{}, services.Wrap(services.ErrConfiguration, "narration", "build", "speech synthesizer unavailable", nil)
	}
	if b.sampleRate <= 0 {
		return Narration{}, services.Wrap(services.ErrConfiguration, "narration", "build", fmt.Sprintf("invalid sample rate %d", b.sampleRate), nil)
	}
	sentences := SplitSentences(textEn)
	if len(sentences) == 0 {
		return Narration{}, services.Wrap(services.ErrGeneration, "narration", "split", "scene has no narration text", nil)
	}
	captions := PairCaptions(sentences, SplitSentences(textZh))
	voice := b.voices.Select(mood)

	parts := make([][]byte, len(sentences))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(max(1, b.parallel))
	for i, sentence := range sentences {
		group.Go(func() error {
			pcm, err := b.speech.Synthesize(gctx, sentence, voice)
			if err != nil {
				return services.Wrap(services.ErrGeneration, "narration", "synthesize", fmt.Sprintf("sentence %d", i+1), err)
			}
			if SampleCount(pcm) == 0 {
				return services.Wrap(services.ErrGeneration, "narration", "synthesize", fmt.Sprintf("sentence %d returned no audio", i+1), nil)
			}
			parts[i] = pcm
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Narration{}, err
	}

	var pcm bytes.Buffer
	subtitles := make([]session.SubtitleLine, 0, len(sentences))
	offset := 0
	for i, part := range parts {
		samples := SampleCount(part)
		pcm.Write(part[:samples*bytesPerSample])
		subtitles = append(subtitles, session.SubtitleLine{
			TextEn:    sentences[i],
			TextZh:    captions[i],
			StartTime: Seconds(offset, b.sampleRate),
			EndTime:   Seconds(offset+samples, b.sampleRate),
		})
		offset += samples
	}

	b.logger.Debug("narration assembled",
		logging.String("voice", voice),
		logging.Int("sentences", len(sentences)),
		logging.Float64("duration_seconds", Seconds(offset, b.sampleRate)),
	)
	return Narration{
		PCM:        pcm.Bytes(),
		SampleRate: b.sampleRate,
		Voice:      voice,
		Duration:   Seconds(offset, b.sampleRate),
		Subtitles:  subtitles,
	}, nil
}

// Narrate builds the scene's narration and writes it to dest as WAV.
func (b *Builder) Narrate(ctx context.Context, scene session.Scene, dest string) (Track, error) {
	n, err := b.Build(ctx, scene.TextEn, scene.TextZh, scene.VoiceMood)
	if err != nil {
		return Track{}, err
	}
	if strings.TrimSpace(dest) == "" {
		return Track{}, services.Wrap(services.ErrConfiguration, "narration", "write", "empty destination path", nil)
	}
	err = fileutil.WriteAtomic(dest, 0o644, func(w io.Writer) error {
		return WriteWAV(w, n.PCM, n.SampleRate)
	})
	if err != nil {
		return Track{}, services.Wrap(services.ErrGeneration, "narration", "write", dest, err)
	}
	return Track{
		AudioPath: dest,
		Voice:     n.Voice,
		Duration:  n.Duration,
		Subtitles: n.Subtitles,
	}, nil
}
