package chat

import "strings"

// Vocabulary is an ordered word list matched by substring containment.
// Declaration order is the tie-break: the first word contained in the text
// wins, even when a later word also matches.
type Vocabulary struct {
	words []string
}

func NewVocabulary(words ...string) Vocabulary {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(w)
	}
	return Vocabulary{words: lowered}
}

// Match scans text (case-insensitively) for the first vocabulary word it
// contains.
func (v Vocabulary) Match(text string) (string, bool) {
	text = strings.ToLower(text)
	for _, w := range v.words {
		if strings.Contains(text, w) {
			return w, true
		}
	}
	return "", false
}

func (v Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}
