// Package workflow owns the active session and drives it through the
// pipeline.
//
// The Manager is the only writer of session state. Every mutation, whether
// a user edit or a generation callback, is a reducer submitted over one
// channel and applied in order by a single goroutine, then persisted before
// the next reducer runs. Long-running operations (reference image, batch
// generation, export) hold the pipeline gate so edits and step jumps are
// refused while they run. A file lock in the state directory keeps a second
// process from driving the same sessions.
package workflow
