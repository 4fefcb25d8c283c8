package workflow

import (
	"context"
	"errors"
	"path/filepath"

	"storyreel/internal/compositor"
	"storyreel/internal/eventlog"
	"storyreel/internal/notifications"
	"storyreel/internal/services"
	"storyreel/internal/session"
)

// Export composes every completed scene into one movie under the export
// directory and returns its path. progress, when set, receives the
// completed percentage before each scene.
func (m *Manager) Export(ctx context.Context, progress func(percent int)) (string, error) {
	release, err := m.gate.Acquire(opExport)
	if err != nil {
		return "", err
	}
	defer release()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	ctx = withSession(ctx, snap.ID)
	events := m.recorder()
	for i, scene := range snap.Scenes {
		if scene.Status == session.StatusGenerating {
			err := services.Wrap(services.ErrBusy, "workflow", "export", "a scene is still generating", nil)
			events.Failure(ctx, err, i, "Export rejected")
			return "", err
		}
	}

	exporter, err := m.exporter(snap.ID, events)
	if err != nil {
		events.Failure(ctx, err, eventlog.NoScene, "Export failed")
		return "", err
	}
	path, err := exporter.Export(ctx, compositor.Request{
		Scenes:    snap.Scenes,
		Settings:  snap.Settings,
		Title:     storyTitle(snap),
		ExportDir: m.cfg.Paths.ExportDir,
		Progress:  progress,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.notifyError(ctx, opExport, err)
		}
		return "", err
	}
	m.publish(ctx, notifications.EventExportCompleted, notifications.Payload{"title": storyTitle(snap), "file": path})
	return path, nil
}

func (m *Manager) exporter(sessionID string, events *eventlog.Recorder) (*compositor.Exporter, error) {
	if m.deps.Prober == nil || m.deps.NewRecorder == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "export", "prober and recorder are not configured", nil)
	}
	workDir := filepath.Join(m.cfg.SessionStagingDir(sessionID), "export")
	return compositor.NewExporter(compositor.Options{
		FPS:    m.cfg.Export.FPS,
		Prober: m.deps.Prober,
		NewRecorder: func() compositor.Recorder {
			return m.deps.NewRecorder(workDir)
		},
		Events:  events,
		Metrics: m.deps.Metrics,
		Logger:  m.logger,
	})
}
