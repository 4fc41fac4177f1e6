package detect

import (
	"context"
	"errors"
	"testing"
)

type stubSearcher struct {
	urls map[string][]string
	err  error
}

func (s *stubSearcher) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	urls := s.urls[query]
	if len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

type stubFetcher struct {
	pages map[string]string
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.pages[pageURL], nil
}

type stubScorer struct {
	scores map[string]float64
}

func (s *stubScorer) Similarity(a, b string) (float64, error) {
	return s.scores[a+"|"+b], nil
}

const essayText = "Solar panels convert sunlight directly into usable electricity. " +
	"Wind turbines capture kinetic energy from moving air masses. " +
	"Hydroelectric dams generate power from falling water pressure."

func TestAnalyzeShortDocumentIsEmpty(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&stubSearcher{}, &stubFetcher{}, &stubScorer{}, Options{})
	result, err := engine.Analyze(context.Background(), "too short")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Matches) != 0 || result.PlagiarismScore != 0 || result.AIProbability != 0 || result.FinalScore != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestAnalyzeNoQualifyingSentencesIsEmpty(t *testing.T) {
	t.Parallel()

	// Long enough overall but every fragment is under the sentence minimum.
	text := "Yes. No. Maybe. Sure. Fine. Okay. Nah. Yep. Hm. Ah. Oh. Eh. Uh. Mm."
	engine := NewEngine(&stubSearcher{}, &stubFetcher{}, &stubScorer{}, Options{})
	result, err := engine.Analyze(context.Background(), text)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Matches) != 0 || result.FinalScore != 0 {
		t.Fatalf("expected empty result, got %#v", result)
	}
}

func TestAnalyzeSingleMatchPipeline(t *testing.T) {
	t.Parallel()

	sentence := "Solar panels convert sunlight directly into usable electricity"
	pageURL := "https://energy.example/solar"
	pageContent := "An article about how solar panels convert sunlight into electricity"

	search := &stubSearcher{urls: map[string][]string{sentence: {pageURL}}}
	fetch := &stubFetcher{pages: map[string]string{pageURL: pageContent}}
	score := &stubScorer{scores: map[string]float64{sentence + "|" + pageContent: 0.80}}

	engine := NewEngine(search, fetch, score, Options{})
	result, err := engine.Analyze(context.Background(), essayText)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if len(result.Matches) != 1 {
		t.Fatalf("got %d matches, want 1: %#v", len(result.Matches), result.Matches)
	}
	match := result.Matches[0]
	if match.SourceURL != pageURL {
		t.Fatalf("sourceURL = %q", match.SourceURL)
	}
	if match.MatchedText != sentence {
		t.Fatalf("matchedText = %q", match.MatchedText)
	}
	if match.SimilarityScore != 0.80 {
		t.Fatalf("similarityScore = %v, want 0.80", match.SimilarityScore)
	}
	if match.MatchType != "semantic" {
		t.Fatalf("matchType = %q", match.MatchType)
	}
	if essayText[match.StartIndex:match.EndIndex] != sentence {
		t.Fatalf("offsets [%d:%d] do not point at the sentence", match.StartIndex, match.EndIndex)
	}
	if result.PlagiarismScore != 0.80 {
		t.Fatalf("plagiarismScore = %v, want 0.80", result.PlagiarismScore)
	}
}

func TestAnalyzeBelowThresholdProducesNoMatch(t *testing.T) {
	t.Parallel()

	sentence := "Solar panels convert sunlight directly into usable electricity"
	pageURL := "https://energy.example/solar"

	search := &stubSearcher{urls: map[string][]string{sentence: {pageURL}}}
	fetch := &stubFetcher{pages: map[string]string{pageURL: "loosely related content"}}
	score := &stubScorer{scores: map[string]float64{sentence + "|loosely related content": 0.50}}

	engine := NewEngine(search, fetch, score, Options{})
	result, err := engine.Analyze(context.Background(), essayText)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(result.Matches))
	}
	if result.PlagiarismScore != 0 {
		t.Fatalf("plagiarismScore = %v, want 0", result.PlagiarismScore)
	}
}

func TestAnalyzeSearchFailureStillScoresStyle(t *testing.T) {
	t.Parallel()

	search := &stubSearcher{err: errors.New("network down")}
	engine := NewEngine(search, &stubFetcher{}, &stubScorer{}, Options{})

	result, err := engine.Analyze(context.Background(), essayText)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(result.Matches) != 0 {
		t.Fatalf("got %d matches, want 0", len(result.Matches))
	}
	if result.AIProbability <= 0 {
		t.Fatalf("aiProbability = %v, want > 0", result.AIProbability)
	}
}

func TestAnalyzeFinalScoreRounding(t *testing.T) {
	t.Parallel()

	// 0.7*0.68 + 0.3*0.32 = 0.572, rounded to 0.57.
	if got := round2(0.68*0.7 + 0.32*0.3); got != 0.57 {
		t.Fatalf("round2 = %v, want 0.57", got)
	}
	// AI probability alone: 0.3*0.55 = 0.165, rounded to 0.17.
	if got := round2(0*0.7 + 0.55*0.3); got != 0.17 {
		t.Fatalf("round2 = %v, want 0.17", got)
	}
}

func TestAnalyzeFinalScoreCombinesSignals(t *testing.T) {
	t.Parallel()

	sentence := "Solar panels convert sunlight directly into usable electricity"
	pageURL := "https://energy.example/solar"
	pageContent := "matching content"

	search := &stubSearcher{urls: map[string][]string{sentence: {pageURL}}}
	fetch := &stubFetcher{pages: map[string]string{pageURL: pageContent}}
	score := &stubScorer{scores: map[string]float64{sentence + "|" + pageContent: 0.80}}

	engine := NewEngine(search, fetch, score, Options{})
	result, err := engine.Analyze(context.Background(), essayText)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	want := round2(0.80*0.7 + result.AIProbability*0.3)
	if result.FinalScore != want {
		t.Fatalf("finalScore = %v, want %v", result.FinalScore, want)
	}
}
