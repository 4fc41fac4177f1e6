package detect

import "strings"

// Sentence is a fragment of the document with its byte offsets into the
// original text.
type Sentence struct {
	Text  string
	Start int
	End   int
}

// SplitSentences splits text on sentence terminators (runs of ".", "!", "?")
// and keeps fragments whose trimmed length exceeds minLen. Offsets index the
// trimmed fragment within the original text.
func SplitSentences(text string, minLen int) []Sentence {
	var out []Sentence
	start := 0

	flush := func(end int) {
		if end <= start {
			return
		}
		fragment := text[start:end]
		trimmed := strings.TrimSpace(fragment)
		if len(trimmed) > minLen {
			lead := strings.Index(fragment, trimmed)
			out = append(out, Sentence{
				Text:  trimmed,
				Start: start + lead,
				End:   start + lead + len(trimmed),
			})
		}
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			flush(i)
			start = i + 1
		}
	}
	flush(len(text))
	return out
}
