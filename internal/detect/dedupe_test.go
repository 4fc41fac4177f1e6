package detect

import (
	"reflect"
	"testing"
)

func TestDeduplicateSortsAndRemovesRepeats(t *testing.T) {
	t.Parallel()

	matches := []Match{
		{SourceURL: "https://a.example", MatchedText: "alpha", SimilarityScore: 0.80},
		{SourceURL: "https://b.example", MatchedText: "beta", SimilarityScore: 0.95},
		{SourceURL: "https://a.example", MatchedText: "alpha", SimilarityScore: 0.74},
		{SourceURL: "https://c.example", MatchedText: "gamma", SimilarityScore: 0.88},
	}

	got := Deduplicate(matches, 25)
	if len(got) != 3 {
		t.Fatalf("got %d matches, want 3: %#v", len(got), got)
	}

	for i := 1; i < len(got); i++ {
		if got[i].SimilarityScore > got[i-1].SimilarityScore {
			t.Fatalf("matches not sorted descending at %d: %#v", i, got)
		}
	}

	seen := make(map[matchKey]bool)
	for _, m := range got {
		key := matchKey{matchedText: m.MatchedText, sourceURL: m.SourceURL}
		if seen[key] {
			t.Fatalf("duplicate key survived: %#v", key)
		}
		seen[key] = true
	}

	// The highest-scoring variant of the repeated pair wins.
	for _, m := range got {
		if m.SourceURL == "https://a.example" && m.SimilarityScore != 0.80 {
			t.Fatalf("kept wrong variant: %#v", m)
		}
	}
}

func TestDeduplicateCaps(t *testing.T) {
	t.Parallel()

	var matches []Match
	for i := 0; i < 40; i++ {
		matches = append(matches, Match{
			SourceURL:       "https://example.com",
			MatchedText:     string(rune('a' + i)),
			SimilarityScore: 0.72 + float64(i)/1000,
		})
	}

	got := Deduplicate(matches, 25)
	if len(got) != 25 {
		t.Fatalf("got %d matches, want 25", len(got))
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	t.Parallel()

	matches := []Match{
		{SourceURL: "https://a.example", MatchedText: "alpha", SimilarityScore: 0.9},
		{SourceURL: "https://b.example", MatchedText: "beta", SimilarityScore: 0.8},
		{SourceURL: "https://a.example", MatchedText: "alpha", SimilarityScore: 0.7},
	}

	once := Deduplicate(matches, 25)
	twice := Deduplicate(once, 25)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	t.Parallel()

	if got := Deduplicate(nil, 25); len(got) != 0 {
		t.Fatalf("got %d matches, want 0", len(got))
	}
}
