package detect

import "sort"

type matchKey struct {
	matchedText string
	sourceURL   string
}

// Deduplicate sorts matches by descending similarity, removes entries that
// repeat an earlier (matched text, source URL) pair, and caps the result at
// max. The sort is stable, so ties keep their discovery order. Applying the
// function twice yields the same slice.
func Deduplicate(matches []Match, max int) []Match {
	if len(matches) == 0 {
		return []Match{}
	}

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SimilarityScore > sorted[j].SimilarityScore
	})

	seen := make(map[matchKey]bool, len(sorted))
	unique := sorted[:0]
	for _, m := range sorted {
		key := matchKey{matchedText: m.MatchedText, sourceURL: m.SourceURL}
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, m)
	}

	if max > 0 && len(unique) > max {
		unique = unique[:max]
	}
	return unique
}
