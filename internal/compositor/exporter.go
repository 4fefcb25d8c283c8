package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"storyreel/internal/eventlog"
	"storyreel/internal/logging"
	"storyreel/internal/media/ffprobe"
	"storyreel/internal/metrics"
	"storyreel/internal/services"
	"storyreel/internal/session"
	"storyreel/internal/textutil"
)

const stageName = "export"

// FallbackFileName is used when the story has no usable title.
const FallbackFileName = "storyreel-export.mp4"

// Recorder consumes the composed frame stream. Implementations must leave
// nothing behind after Abort.
type Recorder interface {
	Start(ctx context.Context, surface Size, fps int) error
	BeginScene(ctx context.Context, index int, scene session.Scene) error
	WriteFrame(ctx context.Context, frame Frame) error
	EndScene(ctx context.Context) error
	Finish(ctx context.Context, dest string) error
	Abort()
}

// Prober inspects a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (ffprobe.Result, error)
}

// FFprobe is the ffprobe-backed Prober.
type FFprobe struct {
	Binary string
}

// Probe runs ffprobe against path.
func (p FFprobe) Probe(ctx context.Context, path string) (ffprobe.Result, error) {
	return ffprobe.Inspect(ctx, p.Binary, path)
}

// Options configures an Exporter.
type Options struct {
	FPS         int
	Prober      Prober
	NewRecorder func() Recorder
	Events      *eventlog.Recorder
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Request describes one export.
type Request struct {
	Scenes    []session.Scene
	Settings  session.VideoSettings
	Title     string
	ExportDir string
	// Progress receives the completed percentage before each scene starts.
	Progress func(percent int)
}

// Exporter composes completed scenes into one file.
type Exporter struct {
	opts   Options
	logger *slog.Logger
}

// NewExporter constructs an Exporter.
func NewExporter(opts Options) (*Exporter, error) {
	if opts.Prober == nil || opts.NewRecorder == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "prober and recorder are required", nil)
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Events == nil {
		opts.Events = eventlog.NewRecorder("", nil, opts.Logger)
	}
	return &Exporter{opts: opts, logger: logging.NewComponentLogger(opts.Logger, stageName)}, nil
}

// FileName derives the export file name from a story title.
func FileName(title string) string {
	name := textutil.SanitizeTitle(title)
	if name == "" {
		return FallbackFileName
	}
	return name + ".mp4"
}

// Progress returns the whole percentage for done of total scenes.
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) * 100 / float64(total)))
}

// Export writes the movie and returns its path. Every scene must be
// completed. Any failure aborts the export and leaves no output file.
func (e *Exporter) Export(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	ctx = services.WithStage(ctx, stageName)
	path, err := e.export(ctx, req)
	if err != nil {
		e.opts.Events.Failure(ctx, err, eventlog.NoScene, "Export failed")
		e.opts.Metrics.ObserveExport(metrics.ResultFailure, time.Since(start))
		return "", err
	}
	e.opts.Events.Info(ctx, "export_completed", eventlog.NoScene, "Export written to %s", path)
	e.opts.Metrics.ObserveExport(metrics.ResultSuccess, time.Since(start))
	return path, nil
}

func (e *Exporter) export(ctx context.Context, req Request) (string, error) {
	if len(req.Scenes) == 0 {
		return "", services.Wrap(services.ErrPrecondition, stageName, "validate", "no scenes to export", nil)
	}
	for _, scene := range req.Scenes {
		if scene.Status != session.StatusCompleted {
			return "", services.Wrap(services.ErrPrecondition, stageName, "validate",
				fmt.Sprintf("scene %d is %s", scene.ID, scene.Status), nil)
		}
	}
	if req.ExportDir == "" {
		return "", services.Wrap(services.ErrConfiguration, stageName, "validate", "export directory is required", nil)
	}
	if err := os.MkdirAll(req.ExportDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, stageName, "prepare", "create export directory", err)
	}

	sizes, err := e.probeScenes(ctx, req.Scenes)
	if err != nil {
		return "", err
	}
	surface := sizes[0]
	if !surface.Valid() {
		w, h := req.Settings.Dimensions()
		surface = Size{W: w, H: h}
	}

	logger := logging.WithContext(ctx, e.logger)
	logger.Info("export started",
		logging.String(logging.FieldEventType, "export_start"),
		logging.Int("scene_count", len(req.Scenes)),
		logging.Int("surface_width", surface.W),
		logging.Int("surface_height", surface.H),
		logging.Int("fps", e.opts.FPS),
	)

	rec := e.opts.NewRecorder()
	if err := rec.Start(ctx, surface, e.opts.FPS); err != nil {
		rec.Abort()
		return "", services.Wrap(services.ErrExport, stageName, "start", "open recorder", err)
	}
	total := len(req.Scenes)
	durations := make([]float64, total)
	for i, scene := range req.Scenes {
		durations[i] = scene.AudioDuration
	}
	frames := TimelineFrames(durations, e.opts.FPS)
	for i, scene := range req.Scenes {
		if scene.Status != session.StatusCompleted {
			continue
		}
		if req.Progress != nil {
			req.Progress(Progress(i, total))
		}
		if frames[i] == 0 {
			logger.Debug("scene shorter than one frame skipped", logging.Int(logging.FieldSceneIndex, i))
			continue
		}
		if err := e.playScene(ctx, rec, i, scene, CoverFit(surface, sizes[i]), frames[i]); err != nil {
			rec.Abort()
			return "", services.Wrap(services.ErrExport, stageName, "compose", fmt.Sprintf("scene %d", scene.ID), err)
		}
	}

	dest := filepath.Join(req.ExportDir, FileName(req.Title))
	if err := rec.Finish(ctx, dest); err != nil {
		rec.Abort()
		_ = os.Remove(dest)
		return "", services.Wrap(services.ErrExport, stageName, "finalize", dest, err)
	}
	logger.Info("export completed",
		logging.String(logging.FieldEventType, "export_complete"),
		logging.String("output", dest),
	)
	return dest, nil
}

func (e *Exporter) playScene(ctx context.Context, rec Recorder, index int, scene session.Scene, placement Placement, frames int) error {
	if err := rec.BeginScene(ctx, index, scene); err != nil {
		return err
	}
	err := SceneFrames(index, scene, placement, e.opts.FPS, frames, func(f Frame) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return rec.WriteFrame(ctx, f)
	})
	if err != nil {
		return err
	}
	return rec.EndScene(ctx)
}

// probeScenes decode-checks every clip and narration track up front and
// returns each clip's produced frame size.
func (e *Exporter) probeScenes(ctx context.Context, scenes []session.Scene) ([]Size, error) {
	sizes := make([]Size, len(scenes))
	for i, scene := range scenes {
		video, err := e.opts.Prober.Probe(ctx, scene.VideoRef)
		if err == nil {
			err = video.Playable("video")
		}
		if err != nil {
			return nil, services.Wrap(services.ErrExport, stageName, "probe_video", fmt.Sprintf("scene %d", scene.ID), err)
		}
		audio, err := e.opts.Prober.Probe(ctx, scene.AudioRef)
		if err == nil {
			err = audio.Playable("audio")
		}
		if err != nil {
			return nil, services.Wrap(services.ErrExport, stageName, "probe_audio", fmt.Sprintf("scene %d", scene.ID), err)
		}
		w, h, _ := video.VideoSize()
		sizes[i] = Size{W: w, H: h}
	}
	return sizes, nil
}
