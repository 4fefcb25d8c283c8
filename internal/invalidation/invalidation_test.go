package invalidation

import (
	"reflect"
	"testing"
	"time"

	"storyreel/internal/session"
)

func completed(id int) session.Scene {
	return session.Scene{ID: id, TextEn: "Once.", TextZh: "从前。", VoiceMood: "calm"}.Complete(
		"v.mp4", "a.wav", 1.5,
		[]session.SubtitleLine{{TextEn: "Once.", TextZh: "从前。", StartTime: 0, EndTime: 1.5}},
	)
}

func sampleSession(step session.Step) session.Session {
	s := session.New("s", time.Unix(100, 0))
	s.Step = step
	s.Story = &session.Story{Title: "Dune", Summary: "Sand.", VisualStyle: "ink", CharacterDescription: "Paul"}
	s.ReferenceImage = &session.ReferenceImage{Path: "ref.png"}
	s.Scenes = []session.Scene{
		completed(1),
		{ID: 2, TextEn: "Two.", Status: session.StatusError},
		{ID: 3, TextEn: "Three.", Status: session.StatusPending},
	}
	return s
}

func TestNonCriticalStoryEditKeepsReference(t *testing.T) {
	for _, step := range session.AllSteps() {
		s := sampleSession(step)
		out, res, err := OnStoryFieldEdited(s, session.StorySummary, "More sand.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.ReferenceImage == nil || out.Step != step {
			t.Fatalf("step %v: non-critical edit invalidated state: ref=%v step=%v", step, out.ReferenceImage, out.Step)
		}
		if !res.Changed || res.ClearedReference || res.Demoted {
			t.Fatalf("unexpected result %#v", res)
		}
		if out.Story.Summary != "More sand." {
			t.Fatalf("edit not applied: %q", out.Story.Summary)
		}
	}
}

func TestCriticalStoryEditFromFinished(t *testing.T) {
	s := sampleSession(session.StepFinished)
	out, res, err := OnStoryFieldEdited(s, session.StoryVisualStyle, "watercolor")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ReferenceImage != nil {
		t.Fatal("expected reference image to be cleared")
	}
	if out.Step != session.StepStoryGen {
		t.Fatalf("expected story-gen, got %v", out.Step)
	}
	if !res.ClearedReference || !res.Demoted || res.DemotedFrom != session.StepFinished {
		t.Fatalf("unexpected result %#v", res)
	}
	if s.ReferenceImage == nil || s.Story.VisualStyle != "ink" {
		t.Fatal("input session was mutated")
	}
	if !reflect.DeepEqual(out.Scenes, s.Scenes) {
		t.Fatal("critical story edit must not touch scenes directly")
	}
}

func TestCriticalStoryEditAtRefImageStepKeepsStep(t *testing.T) {
	s := sampleSession(session.StepRefImageGen)
	out, _, err := OnStoryFieldEdited(s, session.StoryCharacterDescription, "Chani")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ReferenceImage != nil || out.Step != session.StepRefImageGen {
		t.Fatalf("unexpected state ref=%v step=%v", out.ReferenceImage, out.Step)
	}
}

func TestSceneEditResetsAssets(t *testing.T) {
	s := sampleSession(session.StepFinished)
	out, res, err := OnSceneFieldEdited(s, 0, session.SceneTextEn, "Twice.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	scene := out.Scenes[0]
	if scene.Status != session.StatusPending || scene.HasAnyAsset() {
		t.Fatalf("expected pending scene without assets, got %#v", scene)
	}
	if scene.TextEn != "Twice." {
		t.Fatalf("edit not applied: %q", scene.TextEn)
	}
	if !reflect.DeepEqual(res.ResetScenes, []int{0}) {
		t.Fatalf("unexpected reset list %v", res.ResetScenes)
	}
	if out.ReferenceImage == nil || out.Step != session.StepFinished {
		t.Fatal("scene edit must not touch reference image or step")
	}
}

func TestSceneEditSameValueIsNoop(t *testing.T) {
	s := sampleSession(session.StepFinished)
	for _, field := range []session.SceneField{session.SceneTextEn, session.SceneTextZh, session.SceneVoiceMood, session.SceneVisualPrompt} {
		out, res, err := OnSceneFieldEdited(s, 0, field, s.Scenes[0].Field(field))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Changed {
			t.Fatalf("field %s: expected no change", field)
		}
		if !reflect.DeepEqual(out.Scenes, s.Scenes) {
			t.Fatalf("field %s: no-op edit touched scenes", field)
		}
	}
}

func TestSceneEditOutOfRange(t *testing.T) {
	s := sampleSession(session.StepStoryGen)
	if _, _, err := OnSceneFieldEdited(s, 3, session.SceneTextEn, "x"); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestSettingsChangeResetsVideoOnly(t *testing.T) {
	s := sampleSession(session.StepFinished)
	out, res, err := OnSettingsChanged(s, session.SettingsResolution, "1080p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Settings.Resolution != session.Resolution1080p {
		t.Fatalf("settings not applied: %#v", out.Settings)
	}
	if out.ReferenceImage != nil || out.Step != session.StepStoryGen {
		t.Fatalf("expected cleared reference and story-gen, got ref=%v step=%v", out.ReferenceImage, out.Step)
	}
	first := out.Scenes[0]
	if first.Status != session.StatusPending || first.VideoRef != "" {
		t.Fatalf("expected video cleared and pending, got %#v", first)
	}
	if first.AudioRef != "a.wav" || len(first.Subtitles) != 1 || first.AudioDuration != 1.5 {
		t.Fatalf("expected narration kept, got %#v", first)
	}
	if out.Scenes[1].Status != session.StatusPending {
		t.Fatalf("expected error scene reset to pending, got %v", out.Scenes[1].Status)
	}
	if !reflect.DeepEqual(res.ResetScenes, []int{0, 1}) {
		t.Fatalf("unexpected reset list %v", res.ResetScenes)
	}
}

func TestSettingsChangeDemotion(t *testing.T) {
	cases := []struct {
		from session.Step
		want session.Step
	}{
		{session.StepInput, session.StepInput},
		{session.StepStoryGen, session.StepStoryGen},
		{session.StepRefImageGen, session.StepStoryGen},
		{session.StepVideoGen, session.StepStoryGen},
		{session.StepFinished, session.StepStoryGen},
	}
	for _, tc := range cases {
		out, _, err := OnSettingsChanged(sampleSession(tc.from), session.SettingsAspectRatio, "9:16")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Step != tc.want {
			t.Fatalf("from %v: got %v want %v", tc.from, out.Step, tc.want)
		}
	}
}

func TestSettingsChangeSameValueIsNoop(t *testing.T) {
	s := sampleSession(session.StepFinished)
	out, res, err := OnSettingsChanged(s, session.SettingsResolution, "720p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Changed || out.ReferenceImage == nil || out.Step != session.StepFinished {
		t.Fatalf("expected no-op, got %#v", res)
	}
}

func TestDeleteSceneRenumbers(t *testing.T) {
	s := sampleSession(session.StepStoryGen)
	for k := range s.Scenes {
		out, _, err := DeleteScene(s, k)
		if err != nil {
			t.Fatalf("DeleteScene(%d): %v", k, err)
		}
		if len(out.Scenes) != len(s.Scenes)-1 {
			t.Fatalf("unexpected length %d", len(out.Scenes))
		}
		var wantTexts []string
		for i, scene := range s.Scenes {
			if i != k {
				wantTexts = append(wantTexts, scene.TextEn)
			}
		}
		for i, scene := range out.Scenes {
			if scene.ID != i+1 {
				t.Fatalf("delete %d: scene %d has id %d", k, i, scene.ID)
			}
			if scene.TextEn != wantTexts[i] {
				t.Fatalf("delete %d: order changed at %d", k, i)
			}
		}
	}
}

func TestDeleteSceneClampsActive(t *testing.T) {
	s := sampleSession(session.StepStoryGen)
	s.ActiveScene = 2
	out, res, err := DeleteScene(s, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ActiveScene != 1 || !res.ActiveSceneWasClamped {
		t.Fatalf("expected active clamped to 1, got %d (%#v)", out.ActiveScene, res)
	}

	single := sampleSession(session.StepStoryGen)
	single.Scenes = single.Scenes[:1]
	out, _, err = DeleteScene(single, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ActiveScene != 0 || len(out.Scenes) != 0 {
		t.Fatalf("expected empty list with active 0, got %d/%d", out.ActiveScene, len(out.Scenes))
	}
}

func TestAddSceneAppendsPending(t *testing.T) {
	s := sampleSession(session.StepStoryGen)
	out, _ := AddScene(s)
	added := out.Scenes[len(out.Scenes)-1]
	if added.ID != 4 || added.Status != session.StatusPending || added.TextEn != "" || added.HasAnyAsset() {
		t.Fatalf("unexpected added scene %#v", added)
	}
	if len(s.Scenes) != 3 {
		t.Fatal("input session mutated")
	}
}

func TestClampActive(t *testing.T) {
	cases := []struct{ active, n, want int }{
		{0, 0, 0},
		{3, 3, 2},
		{-1, 3, 0},
		{1, 3, 1},
		{5, 1, 0},
	}
	for _, tc := range cases {
		if got := ClampActive(tc.active, tc.n); got != tc.want {
			t.Fatalf("ClampActive(%d,%d) = %d want %d", tc.active, tc.n, got, tc.want)
		}
	}
}
