package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `id, document_id, user_id, status, overall_similarity, ai_generated_probability, final_score, error_message, processing_time, started_at, completed_at, created_at, updated_at`

// StartForDocument serializes admission per document with a row lock on the
// document; the partial unique index on active analyses backstops the check.
func (r *PGRepo) StartForDocument(ctx context.Context, analysis Analysis) (Analysis, bool, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Analysis{}, false, err
	}
	defer tx.Rollback()

	var docID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		analysis.DocumentID, analysis.UserID,
	).Scan(&docID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, false, ErrNotFound
		}
		return Analysis{}, false, err
	}

	latest, err := getLatestForDocument(ctx, tx, analysis.UserID, analysis.DocumentID)
	if err == nil {
		switch latest.Status {
		case StatusPending, StatusProcessing, StatusCompleted:
			if err := tx.Commit(); err != nil {
				return Analysis{}, false, err
			}
			return latest, false, nil
		}
		// failed: terminal and re-startable, fall through to create
	} else if !errors.Is(err, ErrNotFound) {
		return Analysis{}, false, err
	}

	const insert = `
INSERT INTO analyses (id, document_id, user_id, status, overall_similarity, ai_generated_probability, final_score, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0.0, 0.0, 0.0, $5, $5)`
	if _, err := tx.ExecContext(ctx, insert,
		analysis.ID,
		analysis.DocumentID,
		analysis.UserID,
		analysis.Status,
		analysis.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return Analysis{}, false, ErrAlreadyActive
		}
		return Analysis{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Analysis{}, false, err
	}
	return analysis, true, nil
}

func getLatestForDocument(ctx context.Context, tx *sql.Tx, userID, documentID string) (Analysis, error) {
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE user_id = $1 AND document_id = $2
ORDER BY created_at DESC
LIMIT 1`
	a, err := scanAnalysis(tx.QueryRowContext(ctx, query, userID, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE id = $1
LIMIT 1`
	a, err := scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	return a, nil
}

// ListByUser returns analyses for a user, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT ` + analysisColumns + `
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkProcessing transitions pending -> processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $2, started_at = $3, updated_at = now()
WHERE id = $1 AND status = $4`
	res, err := r.DB.ExecContext(ctx, query, analysisID, StatusProcessing, startedAt, StatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("analysis %s not pending: %w", analysisID, ErrNotFound)
	}
	return nil
}

// CompleteWithMatches commits the completed status, scores, and match rows
// together; any failure rolls the whole transition back.
func (r *PGRepo) CompleteWithMatches(ctx context.Context, analysisID string, result ResultUpdate, matches []Match, completedAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const update = `
UPDATE analyses
SET status = $2,
    overall_similarity = $3,
    ai_generated_probability = $4,
    final_score = $5,
    processing_time = $6,
    completed_at = $7,
    updated_at = now()
WHERE id = $1 AND status = $8`
	res, err := tx.ExecContext(ctx, update,
		analysisID,
		StatusCompleted,
		result.OverallSimilarity,
		result.AIGeneratedProbability,
		result.FinalScore,
		result.ProcessingTime,
		completedAt,
		StatusProcessing,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("analysis %s not processing: %w", analysisID, ErrNotFound)
	}

	const insertMatch = `
INSERT INTO plagiarism_matches (id, analysis_id, source_url, matched_text, similarity_score, match_type, start_index, end_index, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, m := range matches {
		if _, err := tx.ExecContext(ctx, insertMatch,
			m.ID,
			analysisID,
			m.SourceURL,
			m.MatchedText,
			m.SimilarityScore,
			m.MatchType,
			m.StartIndex,
			m.EndIndex,
			m.CreatedAt,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkFailed transitions an active analysis to failed. Terminal rows are
// never touched; a redelivered job must not flip a completed analysis.
func (r *PGRepo) MarkFailed(ctx context.Context, analysisID, errorMessage string, processingTime float64, completedAt time.Time) error {
	const query = `
UPDATE analyses
SET status = $2,
    error_message = $3,
    processing_time = $4,
    completed_at = $5,
    updated_at = now()
WHERE id = $1 AND status IN ($6, $7)`
	res, err := r.DB.ExecContext(ctx, query, analysisID, StatusFailed, errorMessage, processingTime, completedAt, StatusPending, StatusProcessing)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("analysis %s already terminal: %w", analysisID, ErrNotFound)
	}
	return nil
}

// ListMatches returns the persisted matches, highest similarity first.
func (r *PGRepo) ListMatches(ctx context.Context, analysisID string) ([]Match, error) {
	const query = `
SELECT id, analysis_id, source_url, matched_text, similarity_score, match_type, start_index, end_index, created_at
FROM plagiarism_matches
WHERE analysis_id = $1
ORDER BY similarity_score DESC, created_at ASC`

	rows, err := r.DB.QueryContext(ctx, query, analysisID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		var sourceURL sql.NullString
		if err := rows.Scan(
			&m.ID,
			&m.AnalysisID,
			&sourceURL,
			&m.MatchedText,
			&m.SimilarityScore,
			&m.MatchType,
			&m.StartIndex,
			&m.EndIndex,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		if sourceURL.Valid {
			m.SourceURL = sourceURL.String
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// AppendLog inserts one audit record.
func (r *PGRepo) AppendLog(ctx context.Context, entry LogEntry) error {
	const query = `
INSERT INTO analysis_logs (id, user_id, analysis_id, action, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	var analysisID sql.NullString
	if entry.AnalysisID != "" {
		analysisID = sql.NullString{String: entry.AnalysisID, Valid: true}
	}
	var details any
	if entry.Details != nil {
		payload, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		details = string(payload)
	}

	_, err := r.DB.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		analysisID,
		entry.Action,
		details,
		entry.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(scanner rowScanner) (Analysis, error) {
	var a Analysis
	var errorMessage sql.NullString
	var processingTime sql.NullFloat64
	var startedAt sql.NullTime
	var completedAt sql.NullTime
	var updatedAt sql.NullTime
	err := scanner.Scan(
		&a.ID,
		&a.DocumentID,
		&a.UserID,
		&a.Status,
		&a.OverallSimilarity,
		&a.AIGeneratedProbability,
		&a.FinalScore,
		&errorMessage,
		&processingTime,
		&startedAt,
		&completedAt,
		&a.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return Analysis{}, err
	}
	if errorMessage.Valid {
		a.ErrorMessage = &errorMessage.String
	}
	if processingTime.Valid {
		a.ProcessingTime = &processingTime.Float64
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if updatedAt.Valid {
		a.UpdatedAt = updatedAt.Time
	}
	return a, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

var _ Repo = (*PGRepo)(nil)
