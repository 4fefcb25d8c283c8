// Package notifications pushes session milestones to ntfy.
//
// A topic URL in [notifications] enables delivery; without one NewService
// returns a no-op. Per-event toggles suppress batch, export, or error
// messages individually.
package notifications
