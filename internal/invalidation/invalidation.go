// Package invalidation derives which generated assets become stale when a
// session is edited.
//
// Every function is pure: it receives the current session, returns a new
// session with exactly the derived resets applied, and never mutates its
// input. The returned Result lists what was reset so callers can log it.
package invalidation

import (
	"fmt"

	"storyreel/internal/session"
)

// Result summarizes the resets an edit caused.
type Result struct {
	Changed               bool
	ClearedReference      bool
	DemotedFrom           session.Step
	Demoted               bool
	ResetScenes           []int
	ActiveSceneClampedTo  int
	ActiveSceneWasClamped bool
}

// OnStoryFieldEdited applies a Story field edit. Critical fields clear the
// reference image and pull video-gen/finished sessions back to story-gen.
func OnStoryFieldEdited(s session.Session, field session.StoryField, value string) (session.Session, Result, error) {
	if s.Story == nil {
		return s, Result{}, fmt.Errorf("edit %s: no story", field)
	}
	if !knownStoryField(field) {
		return s, Result{}, fmt.Errorf("edit story: unknown field %q", field)
	}
	out := s.Clone()
	var res Result
	if out.Story.Field(field) == value {
		return out, res, nil
	}
	story := out.Story.WithField(field, value)
	out.Story = &story
	res.Changed = true

	if !field.IsCritical() {
		return out, res, nil
	}
	if out.ReferenceImage != nil {
		out.ReferenceImage = nil
		res.ClearedReference = true
	}
	if out.Step == session.StepVideoGen || out.Step == session.StepFinished {
		res.Demoted = true
		res.DemotedFrom = out.Step
		out.Step = session.StepStoryGen
	}
	return out, res, nil
}

// OnSceneFieldEdited applies a Scene content edit. A changed value resets the
// scene to pending and clears its assets; an identical value is a no-op.
func OnSceneFieldEdited(s session.Session, index int, field session.SceneField, value string) (session.Session, Result, error) {
	if !s.ValidIndex(index) {
		return s, Result{}, fmt.Errorf("edit scene: index %d out of range (have %d scenes)", index, len(s.Scenes))
	}
	if !knownSceneField(field) {
		return s, Result{}, fmt.Errorf("edit scene: unknown field %q", field)
	}
	out := s.Clone()
	var res Result
	scene := out.Scenes[index]
	if scene.Field(field) == value {
		return out, res, nil
	}
	scene = scene.WithField(field, value).ClearAssets()
	scene.Status = session.StatusPending
	out.Scenes[index] = scene
	res.Changed = true
	res.ResetScenes = []int{index}
	return out, res, nil
}

// OnSettingsChanged applies a VideoSettings change. The reference image is
// cleared, ref-image-gen and later steps fall back to story-gen, and every
// completed or errored scene returns to pending without its video. Narration
// audio and subtitles do not depend on settings and are kept.
func OnSettingsChanged(s session.Session, field session.SettingsField, value string) (session.Session, Result, error) {
	settings, err := s.Settings.WithField(field, value)
	if err != nil {
		return s, Result{}, err
	}
	out := s.Clone()
	var res Result
	if settings == out.Settings {
		return out, res, nil
	}
	out.Settings = settings
	res.Changed = true

	if out.ReferenceImage != nil {
		out.ReferenceImage = nil
		res.ClearedReference = true
	}
	if out.Step >= session.StepRefImageGen {
		res.Demoted = true
		res.DemotedFrom = out.Step
		out.Step = session.StepStoryGen
	}
	for i, scene := range out.Scenes {
		if scene.Status != session.StatusCompleted && scene.Status != session.StatusError {
			continue
		}
		scene.Status = session.StatusPending
		scene.VideoRef = ""
		out.Scenes[i] = scene
		res.ResetScenes = append(res.ResetScenes, i)
	}
	return out, res, nil
}

// DeleteScene removes the scene at index, renumbers the rest to 1..N-1, and
// clamps the active scene when it no longer addresses a scene.
func DeleteScene(s session.Session, index int) (session.Session, Result, error) {
	if !s.ValidIndex(index) {
		return s, Result{}, fmt.Errorf("delete scene: index %d out of range (have %d scenes)", index, len(s.Scenes))
	}
	out := s.Clone()
	remaining := make([]session.Scene, 0, len(out.Scenes)-1)
	remaining = append(remaining, out.Scenes[:index]...)
	remaining = append(remaining, out.Scenes[index+1:]...)
	out.Scenes = session.RenumberScenes(remaining)

	res := Result{Changed: true}
	clamped := ClampActive(out.ActiveScene, len(out.Scenes))
	if clamped != out.ActiveScene {
		res.ActiveSceneWasClamped = true
		res.ActiveSceneClampedTo = clamped
		out.ActiveScene = clamped
	}
	return out, res, nil
}

// AddScene appends an empty pending scene with the next id.
func AddScene(s session.Session) (session.Session, Result) {
	out := s.Clone()
	out.Scenes = append(out.Scenes, session.Scene{
		ID:     len(out.Scenes) + 1,
		Status: session.StatusPending,
	})
	return out, Result{Changed: true}
}

// ClampActive keeps an externally held scene index inside 0..n-1.
func ClampActive(active, n int) int {
	if active < 0 {
		return 0
	}
	if active >= n {
		return max(0, n-1)
	}
	return active
}

func knownStoryField(field session.StoryField) bool {
	switch field {
	case session.StoryTitle, session.StorySummary, session.StoryVisualStyle, session.StoryCharacterDescription:
		return true
	}
	return false
}

func knownSceneField(field session.SceneField) bool {
	switch field {
	case session.SceneTextEn, session.SceneTextZh, session.SceneVisualPrompt, session.SceneVoiceMood:
		return true
	}
	return false
}
