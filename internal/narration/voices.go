package narration

import "strings"

// VoiceRule maps any of its keywords to a voice.
type VoiceRule struct {
	Keywords []string
	Voice    string
}

// VoiceTable is an ordered mood-to-voice mapping. The first rule with a
// keyword contained in the mood (case-insensitive) wins; Default covers the
// rest.
type VoiceTable struct {
	Rules   []VoiceRule
	Default string
}

// DefaultVoiceRules is the stock table, ordered from the most specific
// emotional registers to the broad ones.
var DefaultVoiceRules = []VoiceRule{
	{Keywords: []string{"angry", "furious", "tense", "urgent", "intense", "dramatic"}, Voice: "onyx"},
	{Keywords: []string{"mysterious", "eerie", "ominous", "dark", "suspense"}, Voice: "ash"},
	{Keywords: []string{"sad", "melanchol", "somber", "sorrow", "grief", "wistful"}, Voice: "sage"},
	{Keywords: []string{"happy", "cheerful", "joy", "excited", "playful", "bright"}, Voice: "nova"},
	{Keywords: []string{"epic", "heroic", "grand", "majestic", "triumph"}, Voice: "echo"},
	{Keywords: []string{"calm", "gentle", "soft", "peaceful", "warm", "tender"}, Voice: "shimmer"},
	{Keywords: []string{"whimsical", "storytelling", "fairy", "narrat"}, Voice: "fable"},
}

// NewVoiceTable returns the stock rules with the given default voice.
func NewVoiceTable(defaultVoice string) VoiceTable {
	return VoiceTable{Rules: DefaultVoiceRules, Default: defaultVoice}
}

// Select returns the voice for a mood.
func (t VoiceTable) Select(mood string) string {
	mood = strings.ToLower(strings.TrimSpace(mood))
	if mood != "" {
		for _, rule := range t.Rules {
			for _, kw := range rule.Keywords {
				if kw != "" && strings.Contains(mood, strings.ToLower(kw)) {
					return rule.Voice
				}
			}
		}
	}
	return t.Default
}
