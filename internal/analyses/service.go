package analyses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"plagiarism-backend/internal/detect"
	"plagiarism-backend/internal/documents"
	"plagiarism-backend/internal/queue"
	"plagiarism-backend/internal/shared/metrics"
	"plagiarism-backend/internal/shared/telemetry"
)

// Analyzer runs the detection pipeline over extracted text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (detect.Result, error)
}

// Service orchestrates analysis runs.
type Service struct {
	Repo   Repo
	Docs   *documents.Service
	Engine Analyzer
	Queue  queue.Client
}

// Start admits a new analysis for the document and dispatches the run. When
// the document already has a pending, processing, or completed analysis, that
// analysis is returned with created=false and nothing is dispatched. A failed
// latest analysis is terminal; Start creates a fresh one.
func (s *Service) Start(ctx context.Context, documentID, userID string) (Analysis, bool, error) {
	if documentID == "" || userID == "" {
		return Analysis{}, false, errors.New("documentID and userID are required")
	}

	if _, err := s.Docs.Get(ctx, userID, documentID); err != nil {
		return Analysis{}, false, err
	}

	analysis := Analysis{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		UserID:     userID,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	admitted, created, err := s.Repo.StartForDocument(ctx, analysis)
	if err != nil {
		return Analysis{}, false, err
	}
	if !created {
		return admitted, false, nil
	}

	s.appendLog(userID, admitted.ID, ActionAnalysisStarted, map[string]any{
		"documentId": documentID,
	})

	if s.Queue != nil {
		msg := queue.Message{
			AnalysisID: admitted.ID,
			DocumentID: documentID,
			UserID:     userID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.Queue.Send(ctx, msg); err != nil {
			s.fail(ctx, admitted, fmt.Errorf("enqueue analysis: %w", err), nil)
			return Analysis{}, false, err
		}
		return admitted, true, nil
	}

	go func() {
		_ = s.ProcessAnalysis(backgroundWithRequestID(ctx), admitted.ID)
	}()
	return admitted, true, nil
}

// Get returns an analysis by ID.
func (s *Service) Get(ctx context.Context, analysisID string) (Analysis, error) {
	if analysisID == "" {
		return Analysis{}, errors.New("analysisID is required")
	}
	return s.Repo.GetByID(ctx, analysisID)
}

// Matches returns the persisted matches for an analysis.
func (s *Service) Matches(ctx context.Context, analysisID string) ([]Match, error) {
	if analysisID == "" {
		return nil, errors.New("analysisID is required")
	}
	return s.Repo.ListMatches(ctx, analysisID)
}

// List returns analyses for a user ordered newest-first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if userID == "" {
		return nil, errors.New("userID is required")
	}
	return s.Repo.ListByUser(ctx, userID, limit, offset)
}

// ProcessAnalysis executes one admitted analysis: mark processing, load the
// document text, run the engine, persist. Any failure beyond the engine's own
// per-candidate tolerance transitions the analysis to failed.
func (s *Service) ProcessAnalysis(ctx context.Context, analysisID string) (err error) {
	startedAt := time.Now().UTC()

	analysis, lookupErr := s.Repo.GetByID(ctx, analysisID)
	if lookupErr != nil {
		return fmt.Errorf("analysis lookup id=%s: %w", analysisID, lookupErr)
	}

	// Queue delivery is at-least-once. A redelivered job for an analysis that
	// already reached a terminal state is acknowledged without touching it.
	if !analysis.Active() {
		telemetry.Info("analysis.redelivered", map[string]any{
			"request_id":  requestIDFromContext(ctx),
			"analysis_id": analysis.ID,
			"status":      analysis.Status,
		})
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.fail(ctx, analysis, err, &startedAt)
		}
	}()

	if err := s.Repo.MarkProcessing(ctx, analysisID, startedAt); err != nil {
		err = fmt.Errorf("set processing failed: %w", err)
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     analysis.UserID,
		"document_id": analysis.DocumentID,
		"analysis_id": analysis.ID,
		"status":      StatusProcessing,
	})

	if s.Docs == nil || s.Engine == nil {
		err := errors.New("missing analysis dependencies")
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}

	doc, err := s.Docs.Get(ctx, analysis.UserID, analysis.DocumentID)
	if err != nil {
		err = fmt.Errorf("document lookup id=%s: %w", analysis.DocumentID, err)
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}

	text, err := s.Docs.Text(ctx, doc)
	if err != nil {
		err = fmt.Errorf("document %s: load extracted text: %w", doc.ID, err)
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}

	result, err := s.Engine.Analyze(ctx, text)
	if err != nil {
		err = fmt.Errorf("detection engine: %w", err)
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}

	completedAt := time.Now().UTC()
	matches := make([]Match, 0, len(result.Matches))
	for _, m := range result.Matches {
		matches = append(matches, Match{
			ID:              uuid.NewString(),
			AnalysisID:      analysisID,
			SourceURL:       m.SourceURL,
			MatchedText:     m.MatchedText,
			SimilarityScore: m.SimilarityScore,
			MatchType:       m.MatchType,
			StartIndex:      m.StartIndex,
			EndIndex:        m.EndIndex,
			CreatedAt:       completedAt,
		})
	}

	update := ResultUpdate{
		OverallSimilarity:      result.PlagiarismScore,
		AIGeneratedProbability: result.AIProbability,
		FinalScore:             result.FinalScore,
		ProcessingTime:         completedAt.Sub(startedAt).Seconds(),
	}
	if err := s.Repo.CompleteWithMatches(ctx, analysisID, update, matches, completedAt); err != nil {
		err = fmt.Errorf("persist analysis result: %w", err)
		s.fail(ctx, analysis, err, &startedAt)
		return err
	}

	metrics.IncAnalysisCompleted()
	metrics.ObserveAnalysisDurationMs(durationMs(&startedAt, &completedAt))
	metrics.ObserveAnalysisMatches(len(matches))
	s.appendLog(analysis.UserID, analysisID, ActionAnalysisCompleted, map[string]any{
		"documentId": analysis.DocumentID,
		"finalScore": result.FinalScore,
		"matches":    len(matches),
	})
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     analysis.UserID,
		"document_id": analysis.DocumentID,
		"analysis_id": analysis.ID,
		"status":      StatusCompleted,
		"duration_ms": durationMs(&startedAt, &completedAt),
		"matches":     len(matches),
	})
	return nil
}

func (s *Service) fail(ctx context.Context, analysis Analysis, cause error, startedAt *time.Time) {
	msg := sanitizeError(cause)
	completedAt := time.Now().UTC()
	processingTime := 0.0
	if startedAt != nil {
		processingTime = completedAt.Sub(*startedAt).Seconds()
	}
	// Recorded against a fresh context: the run's context may already be dead.
	if updateErr := s.Repo.MarkFailed(context.Background(), analysis.ID, msg, processingTime, completedAt); updateErr != nil {
		telemetry.Error("analysis.fail_update", map[string]any{
			"analysis_id": analysis.ID,
			"error":       updateErr.Error(),
			"cause":       msg,
		})
	}
	metrics.IncAnalysisFailed()
	if startedAt != nil {
		metrics.ObserveAnalysisDurationMs(durationMs(startedAt, &completedAt))
	}
	s.appendLog(analysis.UserID, analysis.ID, ActionAnalysisFailed, map[string]any{
		"documentId": analysis.DocumentID,
		"error":      msg,
	})
	telemetry.Info("analysis.status", map[string]any{
		"request_id":  requestIDFromContext(ctx),
		"user_id":     analysis.UserID,
		"document_id": analysis.DocumentID,
		"analysis_id": analysis.ID,
		"status":      StatusFailed,
		"error":       msg,
	})
}

// appendLog records audit entries on a fresh context so late failures still
// get logged after the run's context is cancelled.
func (s *Service) appendLog(userID, analysisID, action string, details map[string]any) {
	entry := LogEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		AnalysisID: analysisID,
		Action:     action,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.AppendLog(context.Background(), entry); err != nil {
		telemetry.Error("analysis.log_append", map[string]any{
			"analysis_id": analysisID,
			"action":      action,
			"error":       err.Error(),
		})
	}
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}
