package analyses

import "time"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	ActionAnalysisStarted   = "analysis_started"
	ActionAnalysisCompleted = "analysis_completed"
	ActionAnalysisFailed    = "analysis_failed"
)

// Analysis represents one detection run over a document.
type Analysis struct {
	ID                     string     `json:"id"`
	DocumentID             string     `json:"documentId"`
	UserID                 string     `json:"userId"`
	Status                 string     `json:"status"`
	OverallSimilarity      float64    `json:"overallSimilarity"`
	AIGeneratedProbability float64    `json:"aiGeneratedProbability"`
	FinalScore             float64    `json:"finalScore"`
	ErrorMessage           *string    `json:"errorMessage,omitempty"`
	ProcessingTime         *float64   `json:"processingTime,omitempty"`
	StartedAt              *time.Time `json:"startedAt,omitempty"`
	CompletedAt            *time.Time `json:"completedAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// Active reports whether the analysis occupies the document's single slot.
func (a Analysis) Active() bool {
	return a.Status == StatusPending || a.Status == StatusProcessing
}

// Match is a persisted plagiarism finding.
type Match struct {
	ID              string    `json:"id"`
	AnalysisID      string    `json:"analysisId"`
	SourceURL       string    `json:"sourceUrl"`
	MatchedText     string    `json:"matchedText"`
	SimilarityScore float64   `json:"similarityScore"`
	MatchType       string    `json:"matchType"`
	StartIndex      int       `json:"startIndex"`
	EndIndex        int       `json:"endIndex"`
	CreatedAt       time.Time `json:"createdAt"`
}

// LogEntry is one append-only audit record.
type LogEntry struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	AnalysisID string         `json:"analysisId,omitempty"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ResultUpdate carries the scores persisted when a run completes.
type ResultUpdate struct {
	OverallSimilarity      float64
	AIGeneratedProbability float64
	FinalScore             float64
	ProcessingTime         float64
}
