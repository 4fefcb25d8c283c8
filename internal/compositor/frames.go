package compositor

import (
	"math"

	"storyreel/internal/session"
)

// DefaultFPS is the draw rate of the frame producer.
const DefaultFPS = 30

// Frame is one composed draw of the surface.
type Frame struct {
	Scene     int
	Index     int
	Time      float64
	Placement Placement
	Caption   session.SubtitleLine
	// Captioned is false in gaps between subtitle lines.
	Captioned bool
}

// TimelineFrames splits the concatenated narration timeline into per-scene
// frame counts. Each scene boundary is rounded on the cumulative timeline,
// so the total stays within half a frame of the summed durations however
// many scenes there are. A scene shorter than half a frame may get zero.
func TimelineFrames(durations []float64, fps int) []int {
	counts := make([]int, len(durations))
	if fps <= 0 {
		return counts
	}
	var elapsed float64
	prev := 0
	for i, d := range durations {
		if d > 0 {
			elapsed += d
		}
		end := int(math.Round(elapsed * float64(fps)))
		counts[i] = end - prev
		prev = end
	}
	return counts
}

// SceneFrames produces n frames for one scene. Playback ends with the
// narration; the clip's last frame holds if it is shorter.
func SceneFrames(sceneIndex int, scene session.Scene, placement Placement, fps, n int, emit func(Frame) error) error {
	if fps <= 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		t := float64(i) / float64(fps)
		caption, ok := session.ActiveSubtitle(scene.Subtitles, t)
		if err := emit(Frame{
			Scene:     sceneIndex,
			Index:     i,
			Time:      t,
			Placement: placement,
			Caption:   caption,
			Captioned: ok,
		}); err != nil {
			return err
		}
	}
	return nil
}
