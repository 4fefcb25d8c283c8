// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// The compositor uses it twice: to read back the frame size a video backend
// actually produced, and as a decode check on every clip and narration track
// before an export starts.
package ffprobe
