package narration

import (
	"regexp"
	"strings"
)

// sentencePattern matches a run of text closed by Latin or CJK terminal
// punctuation (repeated marks such as "?!" stay with their sentence).
var sentencePattern = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]+`)

// SplitSentences splits text on terminal punctuation. A trailing fragment
// without punctuation becomes its own sentence, and text with no punctuation
// at all is returned as a single sentence. Blank input yields nil.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	matches := sentencePattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(matches)+1)
	for _, m := range matches {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" && !onlyPunctuation(s) {
			out = append(out, s)
		}
	}
	if tail := strings.TrimSpace(text[matches[len(matches)-1][1]:]); tail != "" {
		out = append(out, tail)
	}
	if len(out) == 0 {
		return []string{text}
	}
	return out
}

func onlyPunctuation(s string) bool {
	return strings.Trim(s, ".!?。！？ \t\n") == ""
}

// PairCaptions aligns target-language sentences to source sentences by
// position. When the counts differ, the last source sentence receives every
// remaining target sentence joined together; sources without a counterpart
// get an empty caption.
func PairCaptions(source, target []string) []string {
	out := make([]string, len(source))
	if len(source) == 0 {
		return out
	}
	last := len(source) - 1
	for i := 0; i < last && i < len(target); i++ {
		out[i] = target[i]
	}
	if last < len(target) {
		out[last] = strings.Join(target[last:], "")
	}
	return out
}
