// Package services defines shared utilities consumed by the pipeline and its
// external generation backends.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, scene indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep the failure
//     taxonomy (input, generation, precondition, export) reachable through
//     errors.Is, and Kind/Hint for reporting.
//
// The subpackages hold the concrete backends: story adaptation, reference
// images, narration speech, and scene video.
package services
