package session

import (
	"fmt"
	"strings"
	"time"
)

// SceneStatus is the generation lifecycle of a single scene.
type SceneStatus string

const (
	StatusPending    SceneStatus = "pending"
	StatusGenerating SceneStatus = "generating"
	StatusCompleted  SceneStatus = "completed"
	StatusError      SceneStatus = "error"
)

var sceneStatuses = map[SceneStatus]struct{}{
	StatusPending:    {},
	StatusGenerating: {},
	StatusCompleted:  {},
	StatusError:      {},
}

// ParseSceneStatus converts a string into a known SceneStatus.
func ParseSceneStatus(value string) (SceneStatus, bool) {
	status := SceneStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := sceneStatuses[status]
	return status, ok
}

// StoryField names an editable Story field.
type StoryField string

const (
	StoryTitle                StoryField = "title"
	StorySummary              StoryField = "summary"
	StoryVisualStyle          StoryField = "visualStyle"
	StoryCharacterDescription StoryField = "characterDescription"
)

// IsCritical reports whether editing the field invalidates the reference image.
func (f StoryField) IsCritical() bool {
	return f == StoryVisualStyle || f == StoryCharacterDescription
}

// SceneField names an editable Scene content field.
type SceneField string

const (
	SceneTextEn       SceneField = "textEn"
	SceneTextZh       SceneField = "textZh"
	SceneVisualPrompt SceneField = "visualPrompt"
	SceneVoiceMood    SceneField = "voiceMood"
)

// SettingsField names a VideoSettings field.
type SettingsField string

const (
	SettingsResolution  SettingsField = "resolution"
	SettingsAspectRatio SettingsField = "aspectRatio"
)

var storyFieldAliases = map[string]StoryField{
	"title":                 StoryTitle,
	"summary":               StorySummary,
	"visualstyle":           StoryVisualStyle,
	"visual_style":          StoryVisualStyle,
	"style":                 StoryVisualStyle,
	"characterdescription":  StoryCharacterDescription,
	"character_description": StoryCharacterDescription,
	"character":             StoryCharacterDescription,
}

var sceneFieldAliases = map[string]SceneField{
	"texten":        SceneTextEn,
	"text_en":       SceneTextEn,
	"en":            SceneTextEn,
	"textzh":        SceneTextZh,
	"text_zh":       SceneTextZh,
	"zh":            SceneTextZh,
	"visualprompt":  SceneVisualPrompt,
	"visual_prompt": SceneVisualPrompt,
	"prompt":        SceneVisualPrompt,
	"voicemood":     SceneVoiceMood,
	"voice_mood":    SceneVoiceMood,
	"mood":          SceneVoiceMood,
}

var settingsFieldAliases = map[string]SettingsField{
	"resolution":   SettingsResolution,
	"aspectratio":  SettingsAspectRatio,
	"aspect_ratio": SettingsAspectRatio,
	"aspect":       SettingsAspectRatio,
}

// ParseStoryField resolves user input (camelCase, snake_case, or short alias).
func ParseStoryField(value string) (StoryField, error) {
	if f, ok := storyFieldAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown story field %q", value)
}

// ParseSceneField resolves user input into a SceneField.
func ParseSceneField(value string) (SceneField, error) {
	if f, ok := sceneFieldAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown scene field %q", value)
}

// ParseSettingsField resolves user input into a SettingsField.
func ParseSettingsField(value string) (SettingsField, error) {
	if f, ok := settingsFieldAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown settings field %q", value)
}

// Source is a citation returned alongside the adapted story.
type Source struct {
	Title string `json:"title" yaml:"title"`
	URI   string `json:"uri" yaml:"uri"`
}

// Story is the adapted book metadata.
type Story struct {
	Title                string   `json:"title" yaml:"title"`
	Summary              string   `json:"summary" yaml:"summary"`
	VisualStyle          string   `json:"visualStyle" yaml:"visual_style"`
	CharacterDescription string   `json:"characterDescription" yaml:"character_description"`
	Sources              []Source `json:"sources" yaml:"sources,omitempty"`
}

// Field returns the current value of a Story field.
func (s Story) Field(field StoryField) string {
	switch field {
	case StoryTitle:
		return s.Title
	case StorySummary:
		return s.Summary
	case StoryVisualStyle:
		return s.VisualStyle
	case StoryCharacterDescription:
		return s.CharacterDescription
	default:
		return ""
	}
}

// Clone deep-copies the story.
func (s Story) Clone() Story {
	out := s
	out.Sources = append([]Source(nil), s.Sources...)
	return out
}

// WithField returns a copy of the story with one field replaced.
func (s Story) WithField(field StoryField, value string) Story {
	out := s.Clone()
	switch field {
	case StoryTitle:
		out.Title = value
	case StorySummary:
		out.Summary = value
	case StoryVisualStyle:
		out.VisualStyle = value
	case StoryCharacterDescription:
		out.CharacterDescription = value
	}
	return out
}

// SubtitleLine is one caption window relative to the scene narration start.
// The interval is half-open: [StartTime, EndTime).
type SubtitleLine struct {
	TextEn    string  `json:"textEn" yaml:"text_en"`
	TextZh    string  `json:"textZh" yaml:"text_zh"`
	StartTime float64 `json:"startTime" yaml:"start_time"`
	EndTime   float64 `json:"endTime" yaml:"end_time"`
}

// Contains reports whether t falls inside the caption window.
func (l SubtitleLine) Contains(t float64) bool {
	return t >= l.StartTime && t < l.EndTime
}

// Scene is one narrated video segment. ID is positional and 1-based.
type Scene struct {
	ID            int            `json:"id" yaml:"id"`
	TextEn        string         `json:"textEn" yaml:"text_en"`
	TextZh        string         `json:"textZh" yaml:"text_zh"`
	VisualPrompt  string         `json:"visualPrompt" yaml:"visual_prompt"`
	VoiceMood     string         `json:"voiceMood" yaml:"voice_mood"`
	Status        SceneStatus    `json:"status" yaml:"-"`
	VideoRef      string         `json:"videoRef,omitempty" yaml:"-"`
	AudioRef      string         `json:"audioRef,omitempty" yaml:"-"`
	AudioDuration float64        `json:"audioDuration,omitempty" yaml:"-"`
	Subtitles     []SubtitleLine `json:"subtitles" yaml:"-"`
}

// Field returns the current value of a Scene content field.
func (s Scene) Field(field SceneField) string {
	switch field {
	case SceneTextEn:
		return s.TextEn
	case SceneTextZh:
		return s.TextZh
	case SceneVisualPrompt:
		return s.VisualPrompt
	case SceneVoiceMood:
		return s.VoiceMood
	default:
		return ""
	}
}

// WithField returns a copy of the scene with one content field replaced.
// Status and assets are untouched; invalidation decides those.
func (s Scene) WithField(field SceneField, value string) Scene {
	out := s.Clone()
	switch field {
	case SceneTextEn:
		out.TextEn = value
	case SceneTextZh:
		out.TextZh = value
	case SceneVisualPrompt:
		out.VisualPrompt = value
	case SceneVoiceMood:
		out.VoiceMood = value
	}
	return out
}

// Clone deep-copies the scene.
func (s Scene) Clone() Scene {
	out := s
	if s.Subtitles != nil {
		out.Subtitles = append(make([]SubtitleLine, 0, len(s.Subtitles)), s.Subtitles...)
	}
	return out
}

// HasAssets reports whether every completed-state field is populated.
func (s Scene) HasAssets() bool {
	return s.VideoRef != "" && s.AudioRef != "" && s.AudioDuration > 0 && s.Subtitles != nil
}

// HasAnyAsset reports whether any completed-state field is populated.
func (s Scene) HasAnyAsset() bool {
	return s.VideoRef != "" || s.AudioRef != "" || s.AudioDuration > 0 || s.Subtitles != nil
}

// ClearAssets drops every generated asset.
func (s Scene) ClearAssets() Scene {
	out := s
	out.VideoRef = ""
	out.AudioRef = ""
	out.AudioDuration = 0
	out.Subtitles = nil
	return out
}

// Complete returns the scene in completed state with all assets set at once.
func (s Scene) Complete(videoRef, audioRef string, duration float64, subtitles []SubtitleLine) Scene {
	out := s
	out.Status = StatusCompleted
	out.VideoRef = videoRef
	out.AudioRef = audioRef
	out.AudioDuration = duration
	out.Subtitles = append(make([]SubtitleLine, 0, len(subtitles)), subtitles...)
	return out
}

// Fail returns the scene in error state with no partial assets.
func (s Scene) Fail() Scene {
	out := s.ClearAssets()
	out.Status = StatusError
	return out
}

// Resolution is the requested output resolution.
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
)

// AspectRatio is the requested frame aspect.
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
)

// VideoSettings constrains reference image and scene video generation.
type VideoSettings struct {
	Resolution  Resolution  `json:"resolution" yaml:"resolution"`
	AspectRatio AspectRatio `json:"aspectRatio" yaml:"aspect_ratio"`
}

// DefaultSettings mirrors the values a fresh session starts with.
func DefaultSettings() VideoSettings {
	return VideoSettings{Resolution: Resolution720p, AspectRatio: AspectLandscape}
}

// Field returns the current value of a settings field.
func (v VideoSettings) Field(field SettingsField) string {
	switch field {
	case SettingsResolution:
		return string(v.Resolution)
	case SettingsAspectRatio:
		return string(v.AspectRatio)
	default:
		return ""
	}
}

// WithField validates and applies a settings change.
func (v VideoSettings) WithField(field SettingsField, value string) (VideoSettings, error) {
	value = strings.TrimSpace(value)
	out := v
	switch field {
	case SettingsResolution:
		switch Resolution(strings.ToLower(value)) {
		case Resolution720p, Resolution1080p:
			out.Resolution = Resolution(strings.ToLower(value))
		default:
			return v, fmt.Errorf("resolution must be 720p or 1080p, got %q", value)
		}
	case SettingsAspectRatio:
		switch AspectRatio(value) {
		case AspectLandscape, AspectPortrait:
			out.AspectRatio = AspectRatio(value)
		default:
			return v, fmt.Errorf("aspect ratio must be 16:9 or 9:16, got %q", value)
		}
	default:
		return v, fmt.Errorf("unknown settings field %q", field)
	}
	return out, nil
}

// Dimensions returns the nominal pixel size for the settings.
func (v VideoSettings) Dimensions() (int, int) {
	long, short := 1280, 720
	if v.Resolution == Resolution1080p {
		long, short = 1920, 1080
	}
	if v.AspectRatio == AspectPortrait {
		return short, long
	}
	return long, short
}

// ReferenceImage is the style/character anchor for scene video generation.
type ReferenceImage struct {
	Path     string        `json:"path"`
	MimeType string        `json:"mimeType"`
	Settings VideoSettings `json:"settings"`
	// StyleKey is the visual style and character description the image was
	// rendered from.
	StyleKey  string    `json:"styleKey"`
	CreatedAt time.Time `json:"createdAt"`
}

// StyleKey derives the reference image key for a story.
func StyleKey(story Story) string {
	return strings.TrimSpace(story.VisualStyle) + "\x1f" + strings.TrimSpace(story.CharacterDescription)
}
