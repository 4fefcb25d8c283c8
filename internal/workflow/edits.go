package workflow

import (
	"context"
	"fmt"

	"storyreel/internal/eventlog"
	"storyreel/internal/invalidation"
	"storyreel/internal/pipeline"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

// EditStoryField applies a story edit and its invalidations.
func (m *Manager) EditStoryField(ctx context.Context, field session.StoryField, value string) (session.Session, error) {
	var res invalidation.Result
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if err := m.ensureEditable(s); err != nil {
			return s, err
		}
		next, r, err := invalidation.OnStoryFieldEdited(s, field, value)
		if err != nil {
			return s, services.Wrap(services.ErrValidation, "workflow", "edit_story", "story edit rejected", err)
		}
		res = r
		return next, nil
	})
	if err != nil {
		return sess, err
	}
	if res.Changed {
		m.recordInvalidation(ctx, fmt.Sprintf("Story %s updated", field), res)
	}
	return sess, nil
}

// EditSceneField applies a scene edit and its invalidations.
func (m *Manager) EditSceneField(ctx context.Context, index int, field session.SceneField, value string) (session.Session, error) {
	var res invalidation.Result
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if err := m.ensureEditable(s); err != nil {
			return s, err
		}
		next, r, err := invalidation.OnSceneFieldEdited(s, index, field, value)
		if err != nil {
			return s, services.Wrap(services.ErrValidation, "workflow", "edit_scene", "scene edit rejected", err)
		}
		res = r
		return next, nil
	})
	if err != nil {
		return sess, err
	}
	if res.Changed {
		m.recordInvalidation(ctx, fmt.Sprintf("Scene %d %s updated", index+1, field), res)
	}
	return sess, nil
}

// ChangeSettings applies a video settings change and its invalidations.
func (m *Manager) ChangeSettings(ctx context.Context, field session.SettingsField, value string) (session.Session, error) {
	var res invalidation.Result
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if err := m.ensureEditable(s); err != nil {
			return s, err
		}
		next, r, err := invalidation.OnSettingsChanged(s, field, value)
		if err != nil {
			return s, services.Wrap(services.ErrValidation, "workflow", "settings", "settings change rejected", err)
		}
		res = r
		return next, nil
	})
	if err != nil {
		return sess, err
	}
	if res.Changed {
		m.recordInvalidation(ctx, fmt.Sprintf("Settings %s set to %s", field, value), res)
	}
	return sess, nil
}

// AddScene appends an empty pending scene and selects it.
func (m *Manager) AddScene(ctx context.Context) (session.Session, error) {
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if err := m.ensureEditable(s); err != nil {
			return s, err
		}
		if !s.HasStory() {
			return s, fmt.Errorf("%w: add scene needs a story", pipeline.ErrPrerequisite)
		}
		next, _ := invalidation.AddScene(s)
		next.ActiveScene = len(next.Scenes) - 1
		return next, nil
	})
	if err != nil {
		return sess, err
	}
	m.recorder().Info(ctx, "scene_added", len(sess.Scenes)-1, "Scene %d added", len(sess.Scenes))
	return sess, nil
}

// DeleteScene removes the scene at index and renumbers the rest.
func (m *Manager) DeleteScene(ctx context.Context, index int) (session.Session, error) {
	var res invalidation.Result
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if err := m.ensureEditable(s); err != nil {
			return s, err
		}
		next, r, err := invalidation.DeleteScene(s, index)
		if err != nil {
			return s, services.Wrap(services.ErrValidation, "workflow", "delete_scene", "scene delete rejected", err)
		}
		res = r
		return next, nil
	})
	if err != nil {
		return sess, err
	}
	m.recordInvalidation(ctx, fmt.Sprintf("Scene %d deleted", index+1), res)
	return sess, nil
}

// SelectScene moves the active scene pointer.
func (m *Manager) SelectScene(ctx context.Context, index int) (session.Session, error) {
	return m.apply(ctx, func(s session.Session) (session.Session, error) {
		if !s.ValidIndex(index) {
			return s, services.Wrap(services.ErrValidation, "workflow", "select_scene",
				fmt.Sprintf("scene index %d out of range (have %d scenes)", index, len(s.Scenes)), nil)
		}
		s.ActiveScene = index
		return s, nil
	})
}

// JumpTo moves the pipeline step. Forward jumps need their prerequisite
// and every jump is refused while the session is busy.
func (m *Manager) JumpTo(ctx context.Context, target session.Step) (session.Session, error) {
	var from session.Step
	sess, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		from = s.Step
		return pipeline.JumpTo(s, target, m.busy(s))
	})
	if err != nil {
		if pipeline.IsPrerequisite(err) {
			m.recorder().Failure(ctx, err, eventlog.NoScene, "Cannot move to %s", target)
		}
		return sess, err
	}
	if from != sess.Step {
		m.recorder().Info(ctx, "step_changed", eventlog.NoScene, "Step moved from %s to %s", from, sess.Step)
	}
	return sess, nil
}

func (m *Manager) recordInvalidation(ctx context.Context, what string, res invalidation.Result) {
	events := m.recorder()
	events.Info(ctx, "edited", eventlog.NoScene, "%s", what)
	if res.ClearedReference {
		events.Warn(ctx, "reference_invalidated", eventlog.NoScene, "Reference image cleared")
	}
	if res.Demoted {
		events.Warn(ctx, "step_demoted", eventlog.NoScene, "Step moved back from %s to %s", res.DemotedFrom, session.StepStoryGen)
	}
	for _, idx := range res.ResetScenes {
		events.Info(ctx, "scene_reset", idx, "Scene %d reset to pending", idx+1)
	}
	if res.ActiveSceneWasClamped {
		events.Info(ctx, "active_scene_clamped", eventlog.NoScene, "Active scene moved to %d", res.ActiveSceneClampedTo+1)
	}
}
