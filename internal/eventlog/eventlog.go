// Package eventlog records the timestamped, append-only diagnostic log a
// session exposes to the user. Every failure and every scene outcome lands
// here in order; nothing is edited or removed once appended.
package eventlog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"storyreel/internal/logging"
	"storyreel/internal/services"
)

// Level is the severity of an entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// NoScene marks entries that are not about a particular scene.
const NoScene = -1

// Entry is one log record. SceneIndex is zero-based or NoScene.
type Entry struct {
	Seq        int64     `json:"seq"`
	SessionID  string    `json:"sessionId"`
	Time       time.Time `json:"time"`
	Level      Level     `json:"level"`
	Kind       string    `json:"kind"`
	SceneIndex int       `json:"sceneIndex"`
	Message    string    `json:"message"`
}

// Scene returns the 1-based scene number for display, or 0.
func (e Entry) Scene() int {
	if e.SceneIndex < 0 {
		return 0
	}
	return e.SceneIndex + 1
}

// Appender persists entries. Implementations assign Seq.
type Appender interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
}

// Memory is an in-process Appender.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

// Append stores a copy of entry with the next sequence number.
func (m *Memory) Append(_ context.Context, entry Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return entry, nil
}

// Entries returns a snapshot in append order.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Recorder stamps entries for one session and mirrors them to slog.
type Recorder struct {
	sessionID string
	sink      Appender
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder returns a Recorder writing to sink. A nil sink keeps entries in
// memory only.
func NewRecorder(sessionID string, sink Appender, logger *slog.Logger) *Recorder {
	if sink == nil {
		sink = &Memory{}
	}
	return &Recorder{
		sessionID: sessionID,
		sink:      sink,
		logger:    logging.NewComponentLogger(logger, "eventlog"),
		now:       time.Now,
	}
}

// WithClock replaces the timestamp source.
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Info appends an informational entry.
func (r *Recorder) Info(ctx context.Context, kind string, scene int, format string, args ...any) {
	r.append(ctx, LevelInfo, kind, scene, fmt.Sprintf(format, args...), nil)
}

// Warn appends a warning entry.
func (r *Recorder) Warn(ctx context.Context, kind string, scene int, format string, args ...any) {
	r.append(ctx, LevelWarn, kind, scene, fmt.Sprintf(format, args...), nil)
}

// Failure appends an error entry. The kind is derived from err.
func (r *Recorder) Failure(ctx context.Context, err error, scene int, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	r.append(ctx, LevelError, services.Kind(err), scene, msg, err)
}

func (r *Recorder) append(ctx context.Context, level Level, kind string, scene int, msg string, cause error) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	entry := Entry{
		SessionID:  r.sessionID,
		Time:       r.now().UTC(),
		Level:      level,
		Kind:       kind,
		SceneIndex: scene,
		Message:    msg,
	}
	log := logging.WithContext(ctx, r.logger)
	if scene >= 0 {
		log = log.With(logging.Int(logging.FieldSceneIndex, scene))
	}
	switch level {
	case LevelError:
		logging.ErrorWithContext(log, msg, "event_"+kind,
			logging.String(logging.FieldErrorKind, kind),
			logging.String(logging.FieldErrorHint, services.Hint(cause)),
		)
	case LevelWarn:
		logging.WarnWithContext(log, msg, "event_"+kind)
	default:
		log.Info(msg, logging.String(logging.FieldEventType, "event_"+kind))
	}
	if _, err := r.sink.Append(context.WithoutCancel(ctx), entry); err != nil {
		logging.ErrorWithContext(r.logger, "event log append failed", "event_log_append_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
		)
	}
}
