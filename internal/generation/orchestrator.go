package generation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storyreel/internal/eventlog"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/narration"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

const stageName = "generation"

// ErrSceneBusy is returned when a scene is already being generated.
var ErrSceneBusy = fmt.Errorf("%w: scene is already generating", services.ErrBusy)

// VideoRenderer writes one scene clip to dest.
type VideoRenderer interface {
	RenderSceneVideo(ctx context.Context, scene session.Scene, ref session.ReferenceImage, settings session.VideoSettings, dest string) error
}

// Narrator writes one scene narration to dest.
type Narrator interface {
	Narrate(ctx context.Context, scene session.Scene, dest string) (narration.Track, error)
}

// Observer is told about every scene state change as soon as it happens.
type Observer func(index int, scene session.Scene)

// Options configures an Orchestrator.
type Options struct {
	Video    VideoRenderer
	Narrator Narrator
	// AssetDir receives scene clips and narration tracks.
	AssetDir string
	Events   *eventlog.Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Observe  Observer
}

// Report summarizes one batch.
type Report struct {
	Attempted int
	Completed int
	Failed    int
	Skipped   int
	Elapsed   time.Duration
}

// Orchestrator generates scene assets.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	active map[int]struct{}
}

// New constructs an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Video == nil || opts.Narrator == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "video renderer and narrator are required", nil)
	}
	if opts.AssetDir == "" {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "init", "asset directory is required", nil)
	}
	if opts.Events == nil {
		opts.Events = eventlog.NewRecorder("", nil, opts.Logger)
	}
	return &Orchestrator{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, stageName),
		active: make(map[int]struct{}),
	}, nil
}

// GenerateAll fills every scene that is not yet completed, in index order.
// A failing scene is marked error and the batch moves on. Cancelling ctx
// stops the batch; scenes not reached stay as they were.
func (o *Orchestrator) GenerateAll(ctx context.Context, scenes []session.Scene, ref *session.ReferenceImage, settings session.VideoSettings) ([]session.Scene, Report, error) {
	start := time.Now()
	out := session.RenumberScenes(scenes)
	var report Report
	if ref == nil {
		err := services.Wrap(services.ErrPrecondition, stageName, "generate_all", "reference image is required", nil)
		o.opts.Events.Failure(ctx, err, eventlog.NoScene, "Scene generation rejected")
		return out, report, err
	}
	if err := o.ensureAssetDir(); err != nil {
		o.opts.Events.Failure(ctx, err, eventlog.NoScene, "Scene generation rejected")
		return out, report, err
	}

	ctx = services.WithStage(ctx, stageName)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("batch generation started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("scene_count", len(out)),
	)

	for i := range out {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			o.opts.Events.Warn(ctx, "cancelled", eventlog.NoScene, "Batch stopped before scene %d", out[i].ID)
			return out, report, err
		}
		if out[i].Status == session.StatusCompleted {
			report.Skipped++
			o.opts.Metrics.ObserveScene(metrics.ResultSkipped, 0)
			continue
		}
		release, err := o.claim(i)
		if err != nil {
			report.Skipped++
			o.opts.Events.Warn(ctx, "busy", i, "Scene %d skipped: already generating", out[i].ID)
			continue
		}
		report.Attempted++
		updated, genErr := o.generateScene(ctx, i, out[i], *ref, settings)
		release()
		out[i] = updated
		switch {
		case genErr == nil:
			report.Completed++
		case ctx.Err() != nil:
			report.Elapsed = time.Since(start)
			return out, report, ctx.Err()
		default:
			report.Failed++
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info("batch generation completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("completed", report.Completed),
		logging.Int("failed", report.Failed),
		logging.Int("skipped", report.Skipped),
		logging.Duration("elapsed", report.Elapsed),
	)
	return out, report, nil
}

// RegenerateOne runs the joint generation for a single scene regardless of
// its current status. The scene's own failure is returned alongside the
// updated list.
func (o *Orchestrator) RegenerateOne(ctx context.Context, scenes []session.Scene, index int, ref *session.ReferenceImage, settings session.VideoSettings) ([]session.Scene, error) {
	out := session.RenumberScenes(scenes)
	if ref == nil {
		err := services.Wrap(services.ErrPrecondition, stageName, "regenerate", "reference image is required", nil)
		o.opts.Events.Failure(ctx, err, index, "Scene regeneration rejected")
		return out, err
	}
	if index < 0 || index >= len(out) {
		err := services.Wrap(services.ErrValidation, stageName, "regenerate", fmt.Sprintf("scene index %d out of range", index), nil)
		o.opts.Events.Failure(ctx, err, eventlog.NoScene, "Scene regeneration rejected")
		return out, err
	}
	if err := o.ensureAssetDir(); err != nil {
		o.opts.Events.Failure(ctx, err, index, "Scene regeneration rejected")
		return out, err
	}
	release, err := o.claim(index)
	if err != nil {
		o.opts.Events.Failure(ctx, err, index, "Scene %d regeneration rejected", out[index].ID)
		return out, err
	}
	defer release()

	updated, genErr := o.generateScene(services.WithStage(ctx, stageName), index, out[index], *ref, settings)
	out[index] = updated
	return out, genErr
}

// Generating reports whether the scene at index is in flight.
func (o *Orchestrator) Generating(index int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[index]
	return ok
}

func (o *Orchestrator) claim(index int) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[index]; busy {
		return nil, ErrSceneBusy
	}
	o.active[index] = struct{}{}
	return func() {
		o.mu.Lock()
		delete(o.active, index)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) generateScene(ctx context.Context, index int, scene session.Scene, ref session.ReferenceImage, settings session.VideoSettings) (session.Scene, error) {
	ctx = services.WithSceneIndex(ctx, index)
	logger := logging.WithContext(ctx, o.logger)
	start := time.Now()

	original := scene
	scene = scene.ClearAssets()
	scene.Status = session.StatusGenerating
	o.observe(index, scene)
	o.opts.Events.Info(ctx, "scene_generating", index, "Scene %d generating", scene.ID)

	videoPath, audioPath := o.assetPaths(scene.ID)
	var track narration.Track
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := o.opts.Video.RenderSceneVideo(groupCtx, scene, ref, settings, videoPath); err != nil {
			return services.Wrap(services.ErrGeneration, stageName, "render_video", fmt.Sprintf("scene %d", scene.ID), err)
		}
		return nil
	})
	group.Go(func() error {
		t, err := o.opts.Narrator.Narrate(groupCtx, scene, audioPath)
		if err != nil {
			return services.Wrap(services.ErrGeneration, stageName, "narrate", fmt.Sprintf("scene %d", scene.ID), err)
		}
		track = t
		return nil
	})
	err := group.Wait()
	if err == nil {
		if _, statErr := os.Stat(videoPath); statErr != nil {
			err = services.Wrap(services.ErrGeneration, stageName, "render_video", fmt.Sprintf("scene %d produced no file", scene.ID), statErr)
		}
	}
	if err != nil {
		removeQuietly(videoPath, audioPath, track.AudioPath)
		if ctx.Err() != nil {
			// Completed and pending scenes keep what they had, including
			// narration retained across a settings reset.
			reverted := original
			if original.Status != session.StatusCompleted && original.Status != session.StatusPending {
				reverted = original.ClearAssets()
				reverted.Status = session.StatusPending
			}
			o.observe(index, reverted)
			o.opts.Events.Warn(ctx, "cancelled", index, "Scene %d cancelled", scene.ID)
			return reverted, ctx.Err()
		}
		failed := scene.Fail()
		o.observe(index, failed)
		o.opts.Events.Failure(ctx, err, index, "Scene %d failed", scene.ID)
		o.opts.Metrics.ObserveScene(metrics.ResultFailure, time.Since(start))
		return failed, err
	}

	completed := scene.Complete(videoPath, track.AudioPath, track.Duration, track.Subtitles)
	o.observe(index, completed)
	o.opts.Events.Info(ctx, "scene_completed", index, "Scene %d completed", scene.ID)
	o.opts.Metrics.ObserveScene(metrics.ResultSuccess, time.Since(start))
	logger.Debug("scene assets written",
		logging.String("video", videoPath),
		logging.String("audio", track.AudioPath),
		logging.Float64("audio_seconds", track.Duration),
		logging.Int("subtitle_lines", len(track.Subtitles)),
	)
	return completed, nil
}

// assetPaths carries a random suffix so a renumbered scene never overwrites
// a sibling's files.
func (o *Orchestrator) assetPaths(id int) (string, string) {
	suffix := uuid.NewString()[:8]
	base := filepath.Join(o.opts.AssetDir, fmt.Sprintf("scene-%02d-%s", id, suffix))
	return base + ".mp4", base + ".wav"
}

func (o *Orchestrator) ensureAssetDir() error {
	if err := os.MkdirAll(o.opts.AssetDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "prepare", "create asset directory", err)
	}
	return nil
}

func (o *Orchestrator) observe(index int, scene session.Scene) {
	if o.opts.Observe != nil {
		o.opts.Observe(index, scene.Clone())
	}
}

func removeQuietly(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		_ = os.Remove(p)
	}
}
