package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyreel/internal/session"
)

const sessionColumns = "id, step, story_json, scenes_json, settings_json, reference_image_json, active_scene, created_at, updated_at"

// Summary is one row of the session listing.
type Summary struct {
	ID        string
	Title     string
	Step      session.Step
	Scenes    int
	UpdatedAt time.Time
}

// SaveSession inserts or replaces the whole session row.
func (s *Store) SaveSession(ctx context.Context, sess session.Session) error {
	if sess.ID == "" {
		return errors.New("session id is required")
	}
	if err := sess.CheckInvariants(); err != nil {
		return fmt.Errorf("refusing to persist session %s: %w", sess.ID, err)
	}
	storyJSON, err := marshalNullable(sess.Story)
	if err != nil {
		return fmt.Errorf("encode story: %w", err)
	}
	scenes := sess.Scenes
	if scenes == nil {
		scenes = []session.Scene{}
	}
	scenesJSON, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("encode scenes: %w", err)
	}
	settingsJSON, err := json.Marshal(sess.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	refJSON, err := marshalNullable(sess.ReferenceImage)
	if err != nil {
		return fmt.Errorf("encode reference image: %w", err)
	}
	title := ""
	if sess.Story != nil {
		title = sess.Story.Title
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO sessions (
            id, step, title, story_json, scenes_json, settings_json,
            reference_image_json, active_scene, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            step = excluded.step,
            title = excluded.title,
            story_json = excluded.story_json,
            scenes_json = excluded.scenes_json,
            settings_json = excluded.settings_json,
            reference_image_json = excluded.reference_image_json,
            active_scene = excluded.active_scene,
            updated_at = excluded.updated_at`,
		sess.ID,
		sess.Step.String(),
		title,
		storyJSON,
		string(scenesJSON),
		string(settingsJSON),
		refJSON,
		sess.ActiveScene,
		formatTime(sess.CreatedAt),
		formatTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// LoadSession fetches one session by id.
func (s *Store) LoadSession(ctx context.Context, id string) (session.Session, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, fmt.Errorf("%w %s", ErrNotFound, id)
	}
	return sess, err
}

// LatestSession returns the most recently updated session.
func (s *Store) LatestSession(ctx context.Context) (session.Session, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+sessionColumns+" FROM sessions ORDER BY updated_at DESC, rowid DESC LIMIT 1")
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Session{}, ErrNotFound
	}
	return sess, err
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT id, title, step, json_array_length(scenes_json), updated_at FROM sessions ORDER BY updated_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum        Summary
			stepRaw    string
			updatedRaw string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &stepRaw, &sum.Scenes, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		if sum.Step, err = session.ParseStep(stepRaw); err != nil {
			return nil, err
		}
		sum.UpdatedAt = parseTime(updatedRaw)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its event log.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w %s", ErrNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_log WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete event log: %w", err)
	}
	return tx.Commit()
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (session.Session, error) {
	var (
		sess        session.Session
		stepRaw     string
		storyRaw    sql.NullString
		scenesRaw   string
		settingsRaw string
		refRaw      sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(&sess.ID, &stepRaw, &storyRaw, &scenesRaw, &settingsRaw, &refRaw, &sess.ActiveScene, &createdRaw, &updatedRaw); err != nil {
		return session.Session{}, err
	}
	step, err := session.ParseStep(stepRaw)
	if err != nil {
		return session.Session{}, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Step = step
	if storyRaw.Valid && storyRaw.String != "" {
		var story session.Story
		if err := json.Unmarshal([]byte(storyRaw.String), &story); err != nil {
			return session.Session{}, fmt.Errorf("decode story for %s: %w", sess.ID, err)
		}
		sess.Story = &story
	}
	if err := json.Unmarshal([]byte(scenesRaw), &sess.Scenes); err != nil {
		return session.Session{}, fmt.Errorf("decode scenes for %s: %w", sess.ID, err)
	}
	if err := json.Unmarshal([]byte(settingsRaw), &sess.Settings); err != nil {
		return session.Session{}, fmt.Errorf("decode settings for %s: %w", sess.ID, err)
	}
	if refRaw.Valid && refRaw.String != "" {
		var ref session.ReferenceImage
		if err := json.Unmarshal([]byte(refRaw.String), &ref); err != nil {
			return session.Session{}, fmt.Errorf("decode reference image for %s: %w", sess.ID, err)
		}
		sess.ReferenceImage = &ref
	}
	sess.CreatedAt = parseTime(createdRaw)
	sess.UpdatedAt = parseTime(updatedRaw)
	return sess, nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t
	}
	return time.Time{}
}
