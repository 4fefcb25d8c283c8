// Package narration turns a scene's bilingual text into one narration track
// plus timed subtitle lines.
//
// Text is split into sentences, each sentence is synthesized separately with
// a voice picked from the scene mood, the raw PCM is concatenated in order,
// and every sentence receives a half-open [start, end) caption window sized
// from its own sample count.
package narration
