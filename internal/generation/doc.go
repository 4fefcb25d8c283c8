// Package generation drives per-scene asset generation. Scenes are walked in
// index order one at a time; for each scene the video and the narration are
// requested together and the scene only changes to completed once both have
// landed on disk.
package generation
