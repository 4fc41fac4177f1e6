package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analyses.
type Repo interface {
	// StartForDocument admits a new analysis for a document. When the latest
	// analysis for the document is pending, processing, or completed it is
	// returned with created=false and no new record is written. A failed (or
	// absent) latest analysis admits the given one with created=true.
	// Admission is atomic with respect to concurrent calls for the same
	// document.
	StartForDocument(ctx context.Context, analysis Analysis) (Analysis, bool, error)
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
	// MarkProcessing transitions pending -> processing.
	MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error
	// CompleteWithMatches transitions processing -> completed and persists
	// the scores and match rows in a single transaction.
	CompleteWithMatches(ctx context.Context, analysisID string, result ResultUpdate, matches []Match, completedAt time.Time) error
	// MarkFailed transitions the analysis to failed with a sanitized message.
	MarkFailed(ctx context.Context, analysisID, errorMessage string, processingTime float64, completedAt time.Time) error
	ListMatches(ctx context.Context, analysisID string) ([]Match, error)
	AppendLog(ctx context.Context, entry LogEntry) error
}
