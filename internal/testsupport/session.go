package testsupport

import (
	"fmt"
	"path/filepath"
	"time"

	"storyreel/internal/session"
)

// SampleSession returns a session at the video-gen step with a story,
// a reference image, and n pending scenes.
func SampleSession(id string, n int) session.Session {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sess := session.New(id, now)
	sess.Story = &session.Story{
		Title:                "The Lighthouse Keeper",
		Summary:              "A keeper tends a light through one long winter.",
		VisualStyle:          "watercolor, muted blues",
		CharacterDescription: "an old keeper with a grey beard and a yellow coat",
	}
	sess.Scenes = make([]session.Scene, n)
	for i := range sess.Scenes {
		sess.Scenes[i] = session.Scene{
			ID:           i + 1,
			TextEn:       fmt.Sprintf("The keeper climbs the stairs. Night %d begins.", i+1),
			TextZh:       fmt.Sprintf("守灯人爬上楼梯。第%d夜开始了。", i+1),
			VisualPrompt: "a spiral staircase inside a lighthouse at dusk",
			VoiceMood:    "calm",
			Status:       session.StatusPending,
		}
	}
	sess.ReferenceImage = &session.ReferenceImage{
		Path:      filepath.Join("staging", id, "reference.png"),
		MimeType:  "image/png",
		Settings:  sess.Settings,
		StyleKey:  session.StyleKey(*sess.Story),
		CreatedAt: now,
	}
	sess.Step = session.StepVideoGen
	return sess
}
