package session

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Session is the complete state of one book-to-video run.
type Session struct {
	ID             string          `json:"id"`
	Step           Step            `json:"step"`
	Story          *Story          `json:"story,omitempty"`
	Scenes         []Scene         `json:"scenes"`
	Settings       VideoSettings   `json:"settings"`
	ReferenceImage *ReferenceImage `json:"referenceImage,omitempty"`
	// ActiveScene is the index the user is currently looking at.
	ActiveScene int       `json:"activeScene"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// New returns an empty session at the input step.
func New(id string, now time.Time) Session {
	return Session{
		ID:        id,
		Step:      StepInput,
		Settings:  DefaultSettings(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Clone deep-copies the session so reducers never alias caller state.
func (s Session) Clone() Session {
	out := s
	if s.Story != nil {
		story := s.Story.Clone()
		out.Story = &story
	}
	if s.ReferenceImage != nil {
		ref := *s.ReferenceImage
		out.ReferenceImage = &ref
	}
	if s.Scenes != nil {
		out.Scenes = make([]Scene, len(s.Scenes))
		for i, scene := range s.Scenes {
			out.Scenes[i] = scene.Clone()
		}
	}
	return out
}

// HasStory reports whether the story prerequisite exists.
func (s Session) HasStory() bool {
	return s.Story != nil
}

// HasReferenceImage reports whether the reference image prerequisite exists.
func (s Session) HasReferenceImage() bool {
	return s.ReferenceImage != nil
}

// StatusCounts tallies scenes by status.
func (s Session) StatusCounts() map[SceneStatus]int {
	counts := make(map[SceneStatus]int, len(sceneStatuses))
	for _, scene := range s.Scenes {
		counts[scene.Status]++
	}
	return counts
}

// AllCompleted reports whether there is at least one scene and every scene is completed.
func (s Session) AllCompleted() bool {
	if len(s.Scenes) == 0 {
		return false
	}
	for _, scene := range s.Scenes {
		if scene.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// ValidIndex reports whether i addresses an existing scene.
func (s Session) ValidIndex(i int) bool {
	return i >= 0 && i < len(s.Scenes)
}

// RenumberScenes assigns dense 1-based ids in slice order.
func RenumberScenes(scenes []Scene) []Scene {
	out := make([]Scene, len(scenes))
	for i, scene := range scenes {
		out[i] = scene.Clone()
		out[i].ID = i + 1
	}
	return out
}

// ErrInvariant marks a violated record invariant.
var ErrInvariant = errors.New("session invariant violated")

// CheckInvariants reports the first violated record invariant, if any.
func (s Session) CheckInvariants() error {
	if !s.Step.Valid() {
		return fmt.Errorf("%w: unknown step %d", ErrInvariant, int(s.Step))
	}
	for i, scene := range s.Scenes {
		if scene.ID != i+1 {
			return fmt.Errorf("%w: scene at index %d has id %d", ErrInvariant, i, scene.ID)
		}
		if _, ok := sceneStatuses[scene.Status]; !ok {
			return fmt.Errorf("%w: scene %d has unknown status %q", ErrInvariant, scene.ID, scene.Status)
		}
		switch scene.Status {
		case StatusCompleted:
			if !scene.HasAssets() {
				return fmt.Errorf("%w: scene %d completed without all assets", ErrInvariant, scene.ID)
			}
		case StatusError, StatusGenerating:
			if scene.HasAnyAsset() {
				return fmt.Errorf("%w: scene %d is %s but retains assets", ErrInvariant, scene.ID, scene.Status)
			}
		}
		if err := CheckSubtitles(scene.Subtitles); err != nil {
			return fmt.Errorf("%w: scene %d: %v", ErrInvariant, scene.ID, err)
		}
	}
	if len(s.Scenes) > 0 && (s.ActiveScene < 0 || s.ActiveScene >= len(s.Scenes)) {
		return fmt.Errorf("%w: active scene %d out of range", ErrInvariant, s.ActiveScene)
	}
	return nil
}

// CheckSubtitles verifies lines are well-formed, sorted, and non-overlapping.
func CheckSubtitles(lines []SubtitleLine) error {
	for i, line := range lines {
		if line.EndTime < line.StartTime {
			return fmt.Errorf("subtitle %d ends before it starts", i)
		}
		if i > 0 && line.StartTime < lines[i-1].EndTime {
			return fmt.Errorf("subtitle %d overlaps its predecessor", i)
		}
	}
	if !sort.SliceIsSorted(lines, func(a, b int) bool { return lines[a].StartTime < lines[b].StartTime }) {
		return errors.New("subtitles not sorted")
	}
	return nil
}

// ActiveSubtitle returns the line whose window contains t.
func ActiveSubtitle(lines []SubtitleLine, t float64) (SubtitleLine, bool) {
	idx := sort.Search(len(lines), func(i int) bool { return lines[i].EndTime > t })
	if idx < len(lines) && lines[idx].Contains(t) {
		return lines[idx], true
	}
	return SubtitleLine{}, false
}
