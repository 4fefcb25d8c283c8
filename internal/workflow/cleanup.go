package workflow

import (
	"context"

	"storyreel/internal/staging"
)

// PruneAssets removes files in the active session's staging directory that
// no scene or the reference image points at.
func (m *Manager) PruneAssets(ctx context.Context) (staging.CleanResult, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return staging.CleanResult{}, err
	}
	if err := m.ensureEditable(snap); err != nil {
		return staging.CleanResult{}, err
	}
	referenced := make(map[string]struct{})
	if snap.ReferenceImage != nil {
		referenced[snap.ReferenceImage.Path] = struct{}{}
	}
	for _, scene := range snap.Scenes {
		for _, p := range []string{scene.VideoRef, scene.AudioRef} {
			if p != "" {
				referenced[p] = struct{}{}
			}
		}
	}
	return staging.PruneSession(ctx, m.cfg.SessionStagingDir(snap.ID), referenced, m.logger), nil
}
