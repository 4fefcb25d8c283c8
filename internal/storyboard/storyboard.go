// Package storyboard reads and writes the hand-editable YAML form of a
// session: the story, the video settings, and the scene texts. Generated
// assets and statuses never appear in a storyboard.
package storyboard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"storyreel/internal/fileutil"
	"storyreel/internal/session"
)

// Version is the storyboard format written by Encode.
const Version = 1

// Document is one storyboard file.
type Document struct {
	Version  int                   `yaml:"version"`
	Story    session.Story         `yaml:"story"`
	Settings session.VideoSettings `yaml:"settings"`
	Scenes   []session.Scene       `yaml:"scenes"`
}

// FromSession builds a document from s. The session must have a story.
func FromSession(s session.Session) (Document, error) {
	if s.Story == nil {
		return Document{}, errors.New("session has no story to export")
	}
	doc := Document{
		Version:  Version,
		Story:    s.Story.Clone(),
		Settings: s.Settings,
		Scenes:   make([]session.Scene, len(s.Scenes)),
	}
	for i, scene := range s.Scenes {
		doc.Scenes[i] = session.Scene{
			ID:           i + 1,
			TextEn:       scene.TextEn,
			TextZh:       scene.TextZh,
			VisualPrompt: scene.VisualPrompt,
			VoiceMood:    scene.VoiceMood,
		}
	}
	return doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode storyboard: %w", err)
	}
	return enc.Close()
}

// Decode reads and validates a storyboard. Scene ids in the file are
// ignored; scenes are renumbered in file order and start pending.
func Decode(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, errors.New("storyboard is empty")
		}
		return Document{}, fmt.Errorf("decode storyboard: %w", err)
	}
	if err := doc.normalize(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Save writes doc to path atomically.
func Save(path string, doc Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

// Load reads and validates the storyboard at path.
func Load(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	return Decode(f)
}

func (d *Document) normalize() error {
	if d.Version == 0 {
		d.Version = Version
	}
	if d.Version > Version {
		return fmt.Errorf("storyboard version %d is newer than supported version %d", d.Version, Version)
	}

	d.Story.Title = strings.TrimSpace(d.Story.Title)
	if d.Story.Title == "" {
		return errors.New("story.title is required")
	}
	d.Story.Summary = strings.TrimSpace(d.Story.Summary)
	d.Story.VisualStyle = strings.TrimSpace(d.Story.VisualStyle)
	d.Story.CharacterDescription = strings.TrimSpace(d.Story.CharacterDescription)

	settings := session.DefaultSettings()
	var err error
	if d.Settings.Resolution != "" {
		if settings, err = settings.WithField(session.SettingsResolution, string(d.Settings.Resolution)); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	if d.Settings.AspectRatio != "" {
		if settings, err = settings.WithField(session.SettingsAspectRatio, string(d.Settings.AspectRatio)); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	d.Settings = settings

	if len(d.Scenes) == 0 {
		return errors.New("storyboard needs at least one scene")
	}
	for i := range d.Scenes {
		scene := &d.Scenes[i]
		scene.TextEn = strings.TrimSpace(scene.TextEn)
		scene.TextZh = strings.TrimSpace(scene.TextZh)
		scene.VisualPrompt = strings.TrimSpace(scene.VisualPrompt)
		scene.VoiceMood = strings.TrimSpace(scene.VoiceMood)
		if scene.TextEn == "" {
			return fmt.Errorf("scene %d: text_en is required", i+1)
		}
		if scene.VisualPrompt == "" {
			return fmt.Errorf("scene %d: visual_prompt is required", i+1)
		}
		*scene = scene.ClearAssets()
		scene.Status = session.StatusPending
	}
	d.Scenes = session.RenumberScenes(d.Scenes)
	return nil
}
