package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"storyreel/internal/eventlog"
	"storyreel/internal/fileutil"
	"storyreel/internal/generation"
	"storyreel/internal/logging"
	"storyreel/internal/notifications"
	"storyreel/internal/pipeline"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

const (
	opStory     = "story adaptation"
	opReference = "reference image"
	opGenerate  = "scene generation"
	opExport    = "export"
)

// CreateStory starts a new session and adapts title into it. The session is
// persisted before the adaptation call so a failure stays visible in its
// event log; on failure it remains at the input step with no story.
func (m *Manager) CreateStory(ctx context.Context, title string) (session.Session, error) {
	release, err := m.gate.Acquire(opStory)
	if err != nil {
		return session.Session{}, err
	}
	defer release()

	sess, err := m.replace(ctx, session.New(uuid.NewString(), m.deps.Now()))
	if err != nil {
		return sess, err
	}
	ctx = withSession(ctx, sess.ID)
	events := m.recorder()
	title = strings.TrimSpace(title)
	events.Info(ctx, "story_requested", eventlog.NoScene, "Adapting %q", title)

	if m.deps.Story == nil {
		err := services.Wrap(services.ErrConfiguration, "workflow", "create_story", "story adapter not configured", nil)
		events.Failure(ctx, err, eventlog.NoScene, "Story adaptation failed")
		return sess, err
	}
	story, scenes, err := m.deps.Story.AdaptStory(ctx, title)
	if err != nil {
		events.Failure(ctx, err, eventlog.NoScene, "Story adaptation failed")
		m.notifyError(ctx, opStory, err)
		return sess, err
	}
	sess, err = m.apply(ctx, func(s session.Session) (session.Session, error) {
		s.Story = &story
		s.Scenes = session.RenumberScenes(scenes)
		s.ActiveScene = 0
		s.Step = session.StepStoryGen
		return s, nil
	})
	if err != nil {
		return sess, err
	}
	events.Info(ctx, "story_created", eventlog.NoScene, "Story %q adapted into %d scenes", story.Title, len(sess.Scenes))
	m.publish(ctx, notifications.EventStoryCreated, notifications.Payload{"title": story.Title, "scenes": len(sess.Scenes)})
	return sess, nil
}

// ImportSession starts a new session from an externally authored story and
// scene list. Scenes arrive pending with no assets.
func (m *Manager) ImportSession(ctx context.Context, story session.Story, scenes []session.Scene, settings session.VideoSettings) (session.Session, error) {
	if _, busy := m.gate.Busy(); busy {
		return session.Session{}, pipeline.ErrBusy
	}
	sess := session.New(uuid.NewString(), m.deps.Now())
	sess.Story = &story
	sess.Settings = settings
	sess.Scenes = make([]session.Scene, len(scenes))
	for i, scene := range scenes {
		scene = scene.ClearAssets()
		scene.Status = session.StatusPending
		sess.Scenes[i] = scene
	}
	sess.Scenes = session.RenumberScenes(sess.Scenes)
	sess.Step = session.StepStoryGen
	sess, err := m.replace(ctx, sess)
	if err != nil {
		return sess, err
	}
	m.recorder().Info(withSession(ctx, sess.ID), "story_imported", eventlog.NoScene, "Story %q imported with %d scenes", story.Title, len(sess.Scenes))
	return sess, nil
}

// GenerateReferenceImage renders the style anchor for the current story and
// settings, then moves the session to ref-image-gen if it was earlier.
func (m *Manager) GenerateReferenceImage(ctx context.Context) (session.Session, error) {
	release, err := m.gate.Acquire(opReference)
	if err != nil {
		return session.Session{}, err
	}
	defer release()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	ctx = withSession(ctx, snap.ID)
	events := m.recorder()
	if err := pipeline.Prerequisite(snap, session.StepRefImageGen); err != nil {
		events.Failure(ctx, err, eventlog.NoScene, "Reference image rejected")
		return snap, err
	}
	if m.deps.Image == nil {
		err := services.Wrap(services.ErrConfiguration, "workflow", "reference_image", "image renderer not configured", nil)
		events.Failure(ctx, err, eventlog.NoScene, "Reference image failed")
		return snap, err
	}

	events.Info(ctx, "reference_generating", eventlog.NoScene, "Generating reference image")
	data, err := m.deps.Image.RenderReferenceImage(ctx, *snap.Story, snap.Settings)
	if err != nil {
		events.Failure(ctx, err, eventlog.NoScene, "Reference image failed")
		m.notifyError(ctx, opReference, err)
		return snap, err
	}
	path := filepath.Join(m.cfg.SessionStagingDir(snap.ID), "reference-"+uuid.NewString()[:8]+".png")
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		err = services.Wrap(services.ErrGeneration, "workflow", "reference_image", "write reference image", err)
		events.Failure(ctx, err, eventlog.NoScene, "Reference image failed")
		return snap, err
	}
	ref := session.ReferenceImage{
		Path:      path,
		MimeType:  "image/png",
		Settings:  snap.Settings,
		StyleKey:  session.StyleKey(*snap.Story),
		CreatedAt: m.deps.Now().UTC(),
	}
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		s.ReferenceImage = &ref
		if s.Step < session.StepRefImageGen {
			s.Step = session.StepRefImageGen
		}
		return s, nil
	})
	if err != nil {
		return sess, err
	}
	events.Info(ctx, "reference_generated", eventlog.NoScene, "Reference image ready")
	return sess, nil
}

// GenerateVideos runs the batch over every scene that is not completed.
// The session moves to video-gen first and to finished once the batch
// settles, whatever mix of completed and errored scenes it produced.
// Cancelling ctx stops the batch and leaves the session at video-gen.
func (m *Manager) GenerateVideos(ctx context.Context) (session.Session, generation.Report, error) {
	var report generation.Report
	orch, err := m.generator()
	if err != nil {
		return session.Session{}, report, err
	}
	release, err := m.gate.Acquire(opGenerate)
	if err != nil {
		return session.Session{}, report, err
	}
	defer release()

	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		return pipeline.JumpTo(s, session.StepVideoGen, false)
	})
	if err != nil {
		if sess.ID != "" {
			m.recorder().Failure(withSession(ctx, sess.ID), err, eventlog.NoScene, "Scene generation rejected")
		}
		return sess, report, err
	}
	ctx = withSession(ctx, sess.ID)
	events := m.recorder()

	_, report, err = orch.GenerateAll(ctx, sess.Scenes, sess.ReferenceImage, sess.Settings)
	if err != nil {
		snap, _ := m.Snapshot(context.WithoutCancel(ctx))
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			m.notifyError(ctx, opGenerate, err)
		}
		return snap, report, err
	}

	sess, err = m.apply(ctx, func(s session.Session) (session.Session, error) {
		if s.Step == session.StepVideoGen {
			s.Step = session.StepFinished
		}
		return s, nil
	})
	if err != nil {
		return sess, report, err
	}
	events.Info(ctx, "batch_completed", eventlog.NoScene, "Generation finished: %d completed, %d failed, %d skipped",
		report.Completed, report.Failed, report.Skipped)
	m.publish(ctx, notifications.EventGenerationCompleted, notifications.Payload{
		"title":     storyTitle(sess),
		"completed": report.Completed + report.Skipped,
		"failed":    report.Failed,
		"duration":  report.Elapsed,
	})
	return sess, report, nil
}

// RegenerateScene reruns generation for one scene whatever its status. It
// may run beside a batch; the orchestrator refuses a scene already in
// flight.
func (m *Manager) RegenerateScene(ctx context.Context, index int) (session.Session, error) {
	orch, err := m.generator()
	if err != nil {
		return session.Session{}, err
	}
	if op, busy := m.gate.Busy(); busy && op != opGenerate {
		return session.Session{}, fmt.Errorf("%w: %s in progress", pipeline.ErrBusy, op)
	}
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	ctx = withSession(ctx, snap.ID)
	if _, err := orch.RegenerateOne(ctx, snap.Scenes, index, snap.ReferenceImage, snap.Settings); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, generation.ErrSceneBusy) {
			m.notifyError(ctx, fmt.Sprintf("scene %d", index+1), err)
		}
		out, _ := m.Snapshot(context.WithoutCancel(ctx))
		return out, err
	}
	return m.Snapshot(ctx)
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.deps.Notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logging.WithContext(ctx, m.logger).Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

func (m *Manager) notifyError(ctx context.Context, label string, err error) {
	m.publish(ctx, notifications.EventError, notifications.Payload{"context": label, "error": err})
}

func withSession(ctx context.Context, id string) context.Context {
	return services.WithSessionID(ctx, id)
}

func storyTitle(s session.Session) string {
	if s.Story == nil {
		return ""
	}
	return s.Story.Title
}
