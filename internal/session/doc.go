// Package session defines the asset records a storyreel session owns: the
// adapted Story, its ordered Scenes, the VideoSettings, the ReferenceImage,
// and the pipeline Step.
//
// Values in this package are plain data. A Session is treated as immutable by
// callers: reducers in the invalidation and pipeline packages take a Session
// and return a new one, and Clone guarantees the returned value shares no
// slices with its source. CheckInvariants reports the first violated record
// invariant and is used by tests and by the store before persisting.
package session
