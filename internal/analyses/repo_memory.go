package analyses

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores analyses in memory and is safe for concurrent use. The
// repo mutex serializes admission the way the Postgres row lock does.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[string]Analysis
	byUser  map[string][]string // userID -> analysis IDs
	byDoc   map[string][]string // documentID -> analysis IDs, oldest first
	matches map[string][]Match  // analysisID -> matches
	logs    []LogEntry
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:    make(map[string]Analysis),
		byUser:  make(map[string][]string),
		byDoc:   make(map[string][]string),
		matches: make(map[string][]Match),
	}
}

func (r *MemoryRepo) StartForDocument(ctx context.Context, analysis Analysis) (Analysis, bool, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := r.byDoc[analysis.DocumentID]
	if len(ids) > 0 {
		latest := r.byID[ids[len(ids)-1]]
		switch latest.Status {
		case StatusPending, StatusProcessing, StatusCompleted:
			return latest, false, nil
		}
	}

	r.byID[analysis.ID] = analysis
	r.byUser[analysis.UserID] = append(r.byUser[analysis.UserID], analysis.ID)
	r.byDoc[analysis.DocumentID] = append(r.byDoc[analysis.DocumentID], analysis.ID)
	return analysis, true, nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return Analysis{}, ErrNotFound
	}
	return analysis, nil
}

func (r *MemoryRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	out := make([]Analysis, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Analysis{}, nil
	}
	end := len(out)
	if offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, analysisID string, startedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.Status != StatusPending {
		return fmt.Errorf("analysis %s not pending: %w", analysisID, ErrNotFound)
	}
	analysis.Status = StatusProcessing
	analysis.StartedAt = &startedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

func (r *MemoryRepo) CompleteWithMatches(ctx context.Context, analysisID string, result ResultUpdate, matches []Match, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if analysis.Status != StatusProcessing {
		return fmt.Errorf("analysis %s not processing: %w", analysisID, ErrNotFound)
	}
	analysis.Status = StatusCompleted
	analysis.OverallSimilarity = result.OverallSimilarity
	analysis.AIGeneratedProbability = result.AIGeneratedProbability
	analysis.FinalScore = result.FinalScore
	processingTime := result.ProcessingTime
	analysis.ProcessingTime = &processingTime
	analysis.CompletedAt = &completedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis

	stored := make([]Match, len(matches))
	copy(stored, matches)
	r.matches[analysisID] = stored
	return nil
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, analysisID, errorMessage string, processingTime float64, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	analysis, ok := r.byID[analysisID]
	if !ok {
		return ErrNotFound
	}
	if !analysis.Active() {
		return fmt.Errorf("analysis %s already terminal: %w", analysisID, ErrNotFound)
	}
	analysis.Status = StatusFailed
	analysis.ErrorMessage = &errorMessage
	analysis.ProcessingTime = &processingTime
	analysis.CompletedAt = &completedAt
	analysis.UpdatedAt = time.Now().UTC()
	r.byID[analysisID] = analysis
	return nil
}

func (r *MemoryRepo) ListMatches(ctx context.Context, analysisID string) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.matches[analysisID]
	out := make([]Match, len(stored))
	copy(out, stored)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SimilarityScore > out[j].SimilarityScore
	})
	return out, nil
}

func (r *MemoryRepo) AppendLog(ctx context.Context, entry LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	return nil
}

// Logs returns a copy of the appended log entries, oldest first.
func (r *MemoryRepo) Logs() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]LogEntry, len(r.logs))
	copy(out, r.logs)
	return out
}

var _ Repo = (*MemoryRepo)(nil)
