package workflow

import "storyreel/internal/session"

// reclaimGenerating resets scenes a previous process left in generating
// state. No orchestrator survives a restart, so those scenes can never
// settle on their own.
func reclaimGenerating(sess session.Session) (session.Session, []int) {
	var reclaimed []int
	out := sess.Clone()
	for i, scene := range out.Scenes {
		if scene.Status != session.StatusGenerating {
			continue
		}
		scene = scene.ClearAssets()
		scene.Status = session.StatusPending
		out.Scenes[i] = scene
		reclaimed = append(reclaimed, i)
	}
	return out, reclaimed
}
