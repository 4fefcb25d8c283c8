// Package compositor exports a session's completed scenes as one movie.
//
// Export is split into a frame producer and a recorder sink. The producer
// walks each scene on a fixed 30 fps clock for exactly as long as the
// scene's narration lasts, working out the cover-fit placement of the clip
// and which caption is on screen for every frame. The recorder turns that
// frame stream into media; FFmpegRecorder renders one segment per scene and
// concatenates them into the final file.
package compositor
