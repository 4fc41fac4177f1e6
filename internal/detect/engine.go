package detect

import (
	"context"
	"math"

	"plagiarism-backend/internal/shared/metrics"
	"plagiarism-backend/internal/shared/telemetry"
)

const (
	defaultSimilarityThreshold = 0.72
	defaultMaxSentences        = 8
	defaultMaxURLsPerSentence  = 3
	defaultMaxMatches          = 25
	defaultPlagiarismWeight    = 0.7
	defaultAIWeight            = 0.3
	defaultMinDocumentLen      = 50
	defaultMinSentenceLen      = 20

	// Page content is capped before embedding; fetched pages can be much longer.
	maxEmbedContentLength = 5000
)

// Match is one plagiarism finding against a web source. StartIndex and
// EndIndex are byte offsets into the analyzed text.
type Match struct {
	SourceURL       string  `json:"sourceUrl"`
	MatchedText     string  `json:"matchedText"`
	SimilarityScore float64 `json:"similarityScore"`
	MatchType       string  `json:"matchType"`
	StartIndex      int     `json:"startIndex"`
	EndIndex        int     `json:"endIndex"`
}

// Result is the outcome of analyzing one document.
type Result struct {
	Matches         []Match `json:"matches"`
	PlagiarismScore float64 `json:"plagiarismScore"`
	AIProbability   float64 `json:"aiProbability"`
	FinalScore      float64 `json:"finalScore"`
}

// Options tune the analysis pipeline.
type Options struct {
	SimilarityThreshold float64
	MaxSentences        int
	MaxURLsPerSentence  int
	MaxMatches          int
	PlagiarismWeight    float64
	AIWeight            float64
	MinDocumentLen      int
	MinSentenceLen      int
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: defaultSimilarityThreshold,
		MaxSentences:        defaultMaxSentences,
		MaxURLsPerSentence:  defaultMaxURLsPerSentence,
		MaxMatches:          defaultMaxMatches,
		PlagiarismWeight:    defaultPlagiarismWeight,
		AIWeight:            defaultAIWeight,
		MinDocumentLen:      defaultMinDocumentLen,
		MinSentenceLen:      defaultMinSentenceLen,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = d.SimilarityThreshold
	}
	if o.MaxSentences <= 0 {
		o.MaxSentences = d.MaxSentences
	}
	if o.MaxURLsPerSentence <= 0 {
		o.MaxURLsPerSentence = d.MaxURLsPerSentence
	}
	if o.MaxMatches <= 0 {
		o.MaxMatches = d.MaxMatches
	}
	if o.PlagiarismWeight <= 0 {
		o.PlagiarismWeight = d.PlagiarismWeight
	}
	if o.AIWeight <= 0 {
		o.AIWeight = d.AIWeight
	}
	if o.MinDocumentLen <= 0 {
		o.MinDocumentLen = d.MinDocumentLen
	}
	if o.MinSentenceLen <= 0 {
		o.MinSentenceLen = d.MinSentenceLen
	}
	return o
}

// Engine runs the detection pipeline: segment the document, search the web
// for each sentence, fetch and score candidates, then combine plagiarism and
// style signals into a final score.
type Engine struct {
	Search Searcher
	Fetch  Fetcher
	Score  Scorer
	Opts   Options
}

// NewEngine wires the production pipeline components.
func NewEngine(search Searcher, fetch Fetcher, score Scorer, opts Options) *Engine {
	return &Engine{Search: search, Fetch: fetch, Score: score, Opts: opts}
}

// Analyze runs the full pipeline over the document text. Per-candidate
// failures (search, fetch, scoring) are logged and skipped; only the text
// itself decides whether a result is produced.
func (e *Engine) Analyze(ctx context.Context, text string) (Result, error) {
	opts := e.Opts.withDefaults()

	empty := Result{Matches: []Match{}}
	if len(text) < opts.MinDocumentLen {
		return empty, nil
	}

	sentences := SplitSentences(text, opts.MinSentenceLen)
	if len(sentences) == 0 {
		return empty, nil
	}
	if len(sentences) > opts.MaxSentences {
		sentences = sentences[:opts.MaxSentences]
	}

	matches := e.detectPlagiarism(ctx, sentences, opts)
	aiProbability := AIProbability(text)

	plagiarismScore := 0.0
	for _, m := range matches {
		if m.SimilarityScore > plagiarismScore {
			plagiarismScore = m.SimilarityScore
		}
	}

	finalScore := round2(plagiarismScore*opts.PlagiarismWeight + aiProbability*opts.AIWeight)

	return Result{
		Matches:         matches,
		PlagiarismScore: plagiarismScore,
		AIProbability:   aiProbability,
		FinalScore:      finalScore,
	}, nil
}

func (e *Engine) detectPlagiarism(ctx context.Context, sentences []Sentence, opts Options) []Match {
	var matches []Match

	for _, sentence := range sentences {
		if ctx.Err() != nil {
			break
		}

		urls, err := e.Search.Search(ctx, sentence.Text, opts.MaxURLsPerSentence)
		if err != nil {
			metrics.IncSearchFailed()
			telemetry.Debug("corpus search failed", map[string]any{
				"error": err.Error(),
			})
			continue
		}

		for _, pageURL := range urls {
			content, err := e.Fetch.Fetch(ctx, pageURL)
			if err != nil {
				metrics.IncFetchFailed()
				telemetry.Debug("page fetch failed", map[string]any{
					"url":   pageURL,
					"error": err.Error(),
				})
				continue
			}
			if content == "" {
				continue
			}
			if len(content) > maxEmbedContentLength {
				content = content[:maxEmbedContentLength]
			}

			similarity, err := e.Score.Similarity(sentence.Text, content)
			if err != nil {
				continue
			}

			if similarity >= opts.SimilarityThreshold {
				matches = append(matches, Match{
					SourceURL:       pageURL,
					MatchedText:     sentence.Text,
					SimilarityScore: similarity,
					MatchType:       "semantic",
					StartIndex:      sentence.Start,
					EndIndex:        sentence.End,
				})
			}
		}
	}

	return Deduplicate(matches, opts.MaxMatches)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
