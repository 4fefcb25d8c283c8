package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"storyreel/internal/compositor"
	"storyreel/internal/config"
	"storyreel/internal/eventlog"
	"storyreel/internal/generation"
	"storyreel/internal/logging"
	"storyreel/internal/metrics"
	"storyreel/internal/notifications"
	"storyreel/internal/pipeline"
	"storyreel/internal/services"
	"storyreel/internal/session"
	"storyreel/internal/store"
)

// ErrNoSession is returned by operations that need an active session.
var ErrNoSession = fmt.Errorf("%w: no active session (run storyreel new)", services.ErrPrecondition)

// ErrLocked is returned when another process holds the state directory.
var ErrLocked = fmt.Errorf("%w: another storyreel process is using this state directory", services.ErrBusy)

var errClosed = errors.New("workflow manager closed")

// StoryAdapter turns a title into a story and its scenes.
type StoryAdapter interface {
	AdaptStory(ctx context.Context, title string) (session.Story, []session.Scene, error)
}

// ImageRenderer produces the reference image bytes.
type ImageRenderer interface {
	RenderReferenceImage(ctx context.Context, story session.Story, settings session.VideoSettings) ([]byte, error)
}

// SessionStore persists sessions and their event log.
type SessionStore interface {
	SaveSession(ctx context.Context, sess session.Session) error
	LoadSession(ctx context.Context, id string) (session.Session, error)
	LatestSession(ctx context.Context) (session.Session, error)
	eventlog.Appender
}

// Dependencies are the collaborators the Manager drives.
type Dependencies struct {
	Story    StoryAdapter
	Image    ImageRenderer
	Video    generation.VideoRenderer
	Narrator generation.Narrator
	Prober   compositor.Prober
	// NewRecorder returns a fresh export sink rooted at workDir.
	NewRecorder func(workDir string) compositor.Recorder
	Notifier    notifications.Service
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Manager coordinates one session at a time.
type Manager struct {
	cfg    *config.Config
	store  SessionStore
	deps   Dependencies
	logger *slog.Logger
	lock   *flock.Flock
	gate   pipeline.Gate

	updates chan update
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// current and loaded belong to the loop goroutine.
	current session.Session
	loaded  bool

	mu           sync.RWMutex
	events       *eventlog.Recorder
	orchestrator *generation.Orchestrator
}

type update struct {
	ctx     context.Context
	fn      func(session.Session, bool) (session.Session, error)
	persist bool
	reply   chan updateResult
}

type updateResult struct {
	sess   session.Session
	loaded bool
	err    error
}

// NewManager constructs a Manager and starts its update loop. Call Open
// before any session operation and Close when done.
func NewManager(cfg *config.Config, st SessionStore, deps Dependencies, logger *slog.Logger) (*Manager, error) {
	if cfg == nil || st == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "config and store are required", nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	m := &Manager{
		cfg:     cfg,
		store:   st,
		deps:    deps,
		logger:  logging.NewComponentLogger(logger, "workflow"),
		lock:    flock.New(cfg.LockPath()),
		updates: make(chan update),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// Open takes the state directory lock and loads the session with id, or
// the most recently updated one when id is empty. A missing latest session
// is not an error; the manager simply has no active session until
// CreateStory or ImportSession.
func (m *Manager) Open(ctx context.Context, id string) error {
	ok, err := m.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}

	var sess session.Session
	if id != "" {
		sess, err = m.store.LoadSession(ctx, id)
	} else {
		sess, err = m.store.LatestSession(ctx)
	}
	if err != nil {
		if id == "" && errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	sess, reclaimed := reclaimGenerating(sess)
	if _, err := m.replace(ctx, sess); err != nil {
		return err
	}
	for _, idx := range reclaimed {
		m.recorder().Warn(ctx, "scene_reclaimed", idx, "Scene %d was left generating; reset to pending", idx+1)
	}
	return nil
}

// Close stops the update loop, releases the lock, and writes the metrics
// textfile when configured.
func (m *Manager) Close() error {
	m.once.Do(func() {
		close(m.quit)
		<-m.stopped
	})
	var errs []error
	if path := m.cfg.Metrics.Textfile; path != "" {
		if err := m.deps.Metrics.WriteTextfile(path); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if m.lock.Locked() {
		if err := m.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release lock: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Snapshot returns a copy of the active session.
func (m *Manager) Snapshot(ctx context.Context) (session.Session, error) {
	res := m.submit(ctx, false, func(s session.Session, loaded bool) (session.Session, error) {
		if !loaded {
			return s, ErrNoSession
		}
		return s, nil
	})
	return res.sess, res.err
}

// Busy reports the long-running operation holding the gate, if any.
func (m *Manager) Busy() (string, bool) {
	return m.gate.Busy()
}

func (m *Manager) run() {
	defer close(m.stopped)
	for {
		select {
		case u := <-m.updates:
			u.reply <- m.handle(u)
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) handle(u update) updateResult {
	next, err := u.fn(m.current.Clone(), m.loaded)
	if err != nil {
		return updateResult{sess: m.current.Clone(), loaded: m.loaded, err: err}
	}
	if !u.persist {
		return updateResult{sess: next, loaded: m.loaded}
	}
	next.UpdatedAt = m.deps.Now().UTC()
	if err := m.store.SaveSession(u.ctx, next); err != nil {
		logging.ErrorWithContext(logging.WithContext(u.ctx, m.logger), "session save failed", "session_save_failed",
			logging.String(logging.FieldSessionID, next.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state directory and database permissions"),
		)
		return updateResult{sess: m.current.Clone(), loaded: m.loaded, err: err}
	}
	m.current = next
	m.loaded = true
	return updateResult{sess: next.Clone(), loaded: true}
}

func (m *Manager) submit(ctx context.Context, persist bool, fn func(session.Session, bool) (session.Session, error)) updateResult {
	reply := make(chan updateResult, 1)
	select {
	case m.updates <- update{ctx: ctx, fn: fn, persist: persist, reply: reply}:
	case <-m.quit:
		return updateResult{err: errClosed}
	}
	return <-reply
}

// apply runs fn against the active session and persists the result.
func (m *Manager) apply(ctx context.Context, fn func(session.Session) (session.Session, error)) (session.Session, error) {
	res := m.submit(ctx, true, func(s session.Session, loaded bool) (session.Session, error) {
		if !loaded {
			return s, ErrNoSession
		}
		return fn(s)
	})
	return res.sess, res.err
}

// replace installs sess as the active session and rebinds the per-session
// collaborators.
func (m *Manager) replace(ctx context.Context, sess session.Session) (session.Session, error) {
	res := m.submit(ctx, true, func(session.Session, bool) (session.Session, error) {
		return sess, nil
	})
	if res.err != nil {
		return res.sess, res.err
	}
	if err := m.bind(res.sess); err != nil {
		return res.sess, err
	}
	return res.sess, nil
}

func (m *Manager) bind(sess session.Session) error {
	events := eventlog.NewRecorder(sess.ID, m.store, m.logger).WithClock(m.deps.Now)
	var orch *generation.Orchestrator
	if m.deps.Video != nil && m.deps.Narrator != nil {
		var err error
		orch, err = generation.New(generation.Options{
			Video:    m.deps.Video,
			Narrator: m.deps.Narrator,
			AssetDir: m.cfg.SessionStagingDir(sess.ID),
			Events:   events,
			Metrics:  m.deps.Metrics,
			Logger:   m.logger,
			Observe:  m.observeScene,
		})
		if err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.events = events
	m.orchestrator = orch
	m.mu.Unlock()
	return nil
}

func (m *Manager) recorder() *eventlog.Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.events == nil {
		return eventlog.NewRecorder("", nil, m.logger)
	}
	return m.events
}

func (m *Manager) generator() (*generation.Orchestrator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.orchestrator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "generate", "video renderer and narrator are not configured", nil)
	}
	return m.orchestrator, nil
}

// observeScene persists every scene status change the orchestrator makes.
// The write ignores caller cancellation so a cancelled scene's revert is
// still recorded.
func (m *Manager) observeScene(index int, scene session.Scene) {
	ctx := context.Background()
	_, err := m.apply(ctx, func(s session.Session) (session.Session, error) {
		if !s.ValidIndex(index) {
			return s, fmt.Errorf("scene index %d out of range", index)
		}
		s.Scenes[index] = scene
		return s, nil
	})
	if err != nil && !errors.Is(err, errClosed) {
		logging.WarnWithContext(m.logger, "scene update not persisted", "scene_update_failed",
			logging.Int(logging.FieldSceneIndex, index),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "rerun storyreel generate to resume"),
		)
	}
}

// ensureEditable refuses edits while a long-running operation holds the
// gate or any scene is generating.
func (m *Manager) ensureEditable(s session.Session) error {
	if op, busy := m.gate.Busy(); busy {
		return fmt.Errorf("%w: %s in progress", pipeline.ErrBusy, op)
	}
	for i, scene := range s.Scenes {
		if scene.Status == session.StatusGenerating {
			return fmt.Errorf("%w: scene %d is generating", pipeline.ErrBusy, i+1)
		}
	}
	return nil
}

func (m *Manager) busy(s session.Session) bool {
	return m.ensureEditable(s) != nil
}
