package detect

// AIProbability estimates how likely the text is machine-generated from the
// variance of its sentence lengths. Uniform sentence lengths read as
// machine-like; human writing varies more.
func AIProbability(text string) float64 {
	sentences := SplitSentences(text, defaultMinSentenceLen)
	if len(sentences) < 3 {
		return 0.0
	}

	lengths := make([]float64, len(sentences))
	var sum float64
	for i, s := range sentences {
		lengths[i] = float64(wordCount(s.Text))
		sum += lengths[i]
	}
	mean := sum / float64(len(lengths))

	var variance float64
	for _, l := range lengths {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(lengths))

	switch {
	case variance < 5:
		return 0.75
	case variance < 10:
		return 0.55
	default:
		return 0.25
	}
}

func wordCount(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
