package detect

import (
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"
)

const embeddingDim = 256

// Scorer computes a semantic similarity between two text spans.
type Scorer interface {
	Similarity(a, b string) (float64, error)
}

// EmbeddingScorer embeds spans with a hashed bag-of-words model and compares
// them by cosine similarity. Token counts are non-negative, so scores fall in
// [0, 1]. The vocabulary hash table is built once per process.
type EmbeddingScorer struct {
	once sync.Once
	hash func(token string) int
}

func (s *EmbeddingScorer) init() {
	s.once.Do(func() {
		s.hash = func(token string) int {
			h := fnv.New32a()
			h.Write([]byte(token))
			return int(h.Sum32() % embeddingDim)
		}
	})
}

func (s *EmbeddingScorer) Similarity(a, b string) (float64, error) {
	s.init()

	va, err := s.encode(a)
	if err != nil {
		return 0, err
	}
	vb, err := s.encode(b)
	if err != nil {
		return 0, err
	}
	return cosine(va, vb), nil
}

func (s *EmbeddingScorer) encode(text string) ([embeddingDim]float64, error) {
	var vec [embeddingDim]float64
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, errors.New("no tokens to encode")
	}
	for _, token := range tokens {
		vec[s.hash(token)]++
	}
	return vec, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b [embeddingDim]float64) float64 {
	var dot, normA, normB float64
	for i := 0; i < embeddingDim; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Scorer = (*EmbeddingScorer)(nil)
