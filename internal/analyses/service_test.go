package analyses

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"plagiarism-backend/internal/detect"
	"plagiarism-backend/internal/documents"
	"plagiarism-backend/internal/queue"
	"plagiarism-backend/internal/shared/storage/object/local"
)

type stubEngine struct {
	result detect.Result
	err    error
	calls  int
}

func (e *stubEngine) Analyze(ctx context.Context, text string) (detect.Result, error) {
	e.calls++
	if e.err != nil {
		return detect.Result{}, e.err
	}
	return e.result, nil
}

type captureQueue struct {
	mu   sync.Mutex
	sent []queue.Message
	err  error
}

func (q *captureQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, msg)
	return nil
}

func (q *captureQueue) messages() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Message, len(q.sent))
	copy(out, q.sent)
	return out
}

const sampleText = "The mitochondria is the powerhouse of the cell and supplies energy. " +
	"Photosynthesis converts light energy into chemical energy inside chloroplasts. " +
	"Cellular respiration releases that stored energy for metabolic work."

func newTestService(t *testing.T, engine Analyzer, q queue.Client) (*Service, documents.Document) {
	t.Helper()

	docs := &documents.Service{
		Store: local.New(t.TempDir()),
		Repo:  documents.NewMemoryRepo(),
	}
	doc, err := docs.SubmitText(context.Background(), "user-1", "essay", sampleText)
	if err != nil {
		t.Fatalf("submit text: %v", err)
	}

	svc := &Service{
		Repo:   NewMemoryRepo(),
		Docs:   docs,
		Engine: engine,
		Queue:  q,
	}
	return svc, doc
}

func TestStartEnqueuesAndProcessCompletes(t *testing.T) {
	engine := &stubEngine{result: detect.Result{
		Matches: []detect.Match{{
			SourceURL:       "https://example.com/a",
			MatchedText:     "The mitochondria is the powerhouse of the cell and supplies energy",
			SimilarityScore: 0.91,
			MatchType:       "semantic",
			StartIndex:      0,
			EndIndex:        66,
		}},
		PlagiarismScore: 0.91,
		AIProbability:   0.25,
		FinalScore:      0.71,
	}}
	q := &captureQueue{}
	svc, doc := newTestService(t, engine, q)

	analysis, created, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !created {
		t.Fatal("expected created=true for first analysis")
	}
	if analysis.Status != StatusPending {
		t.Fatalf("status = %q, want %q", analysis.Status, StatusPending)
	}

	msgs := q.messages()
	if len(msgs) != 1 {
		t.Fatalf("queued messages = %d, want 1", len(msgs))
	}
	if msgs[0].AnalysisID != analysis.ID || msgs[0].DocumentID != doc.ID || msgs[0].UserID != "user-1" {
		t.Fatalf("unexpected message %+v", msgs[0])
	}

	if err := svc.ProcessAnalysis(context.Background(), analysis.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.OverallSimilarity != 0.91 || got.AIGeneratedProbability != 0.25 || got.FinalScore != 0.71 {
		t.Fatalf("scores = %.2f/%.2f/%.2f", got.OverallSimilarity, got.AIGeneratedProbability, got.FinalScore)
	}
	if got.CompletedAt == nil || got.StartedAt == nil {
		t.Fatal("expected started and completed timestamps")
	}
	if got.ProcessingTime == nil {
		t.Fatal("expected processing time")
	}

	matches, err := svc.Matches(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
	if matches[0].SourceURL != "https://example.com/a" || matches[0].AnalysisID != analysis.ID {
		t.Fatalf("unexpected match %+v", matches[0])
	}
	if matches[0].ID == "" {
		t.Fatal("expected persisted match id")
	}
}

func TestProcessRedeliveryKeepsCompleted(t *testing.T) {
	engine := &stubEngine{result: detect.Result{
		Matches: []detect.Match{{
			SourceURL:       "https://example.com/a",
			MatchedText:     "The mitochondria is the powerhouse of the cell and supplies energy",
			SimilarityScore: 0.91,
			MatchType:       "semantic",
			EndIndex:        66,
		}},
		PlagiarismScore: 0.91,
		AIProbability:   0.25,
		FinalScore:      0.71,
	}}
	svc, doc := newTestService(t, engine, &captureQueue{})

	analysis, _, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.ProcessAnalysis(context.Background(), analysis.ID); err != nil {
		t.Fatalf("process: %v", err)
	}

	// Second delivery of the same job must acknowledge without rerunning the
	// engine or disturbing the stored result.
	if err := svc.ProcessAnalysis(context.Background(), analysis.ID); err != nil {
		t.Fatalf("redelivered process: %v", err)
	}
	if engine.calls != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.calls)
	}

	got, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error message = %q, want none", *got.ErrorMessage)
	}
	if got.FinalScore != 0.71 {
		t.Fatalf("final score = %.2f, want 0.71", got.FinalScore)
	}
	matches, err := svc.Matches(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(matches))
	}
}

func TestMarkFailedLeavesTerminalAnalysis(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Now().UTC()
	analysis := Analysis{
		ID:         "an-1",
		DocumentID: "doc-1",
		UserID:     "user-1",
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, _, err := repo.StartForDocument(context.Background(), analysis); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := repo.MarkProcessing(context.Background(), "an-1", now); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := repo.CompleteWithMatches(context.Background(), "an-1", ResultUpdate{FinalScore: 0.33}, nil, now); err != nil {
		t.Fatalf("complete: %v", err)
	}

	err := repo.MarkFailed(context.Background(), "an-1", "late failure", 1.5, now)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	got, err := repo.GetByID(context.Background(), "an-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error message = %q, want none", *got.ErrorMessage)
	}
}

func TestStartReturnsExistingActiveAnalysis(t *testing.T) {
	q := &captureQueue{}
	svc, doc := newTestService(t, &stubEngine{}, q)

	first, created, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil || !created {
		t.Fatalf("first start: created=%v err=%v", created, err)
	}

	second, created, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if created {
		t.Fatal("expected created=false while an analysis is pending")
	}
	if second.ID != first.ID {
		t.Fatalf("got analysis %s, want existing %s", second.ID, first.ID)
	}
	if len(q.messages()) != 1 {
		t.Fatalf("queued messages = %d, want 1", len(q.messages()))
	}
}

func TestStartUnknownDocument(t *testing.T) {
	svc, _ := newTestService(t, &stubEngine{}, &captureQueue{})

	_, _, err := svc.Start(context.Background(), "missing-doc", "user-1")
	if !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("err = %v, want documents.ErrNotFound", err)
	}
}

func TestProcessFailureMarksFailed(t *testing.T) {
	engine := &stubEngine{err: errors.New("search backend unreachable\nwith details")}
	q := &captureQueue{}
	svc, doc := newTestService(t, engine, q)

	analysis, _, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := svc.ProcessAnalysis(context.Background(), analysis.ID); err == nil {
		t.Fatal("expected process error")
	}

	got, err := svc.Get(context.Background(), analysis.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", got.Status, StatusFailed)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatal("expected error message")
	}
	if strings.Contains(*got.ErrorMessage, "\n") {
		t.Fatalf("error message not flattened: %q", *got.ErrorMessage)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completion timestamp on failure")
	}
}

func TestFailedAnalysisCanBeRestarted(t *testing.T) {
	engine := &stubEngine{err: errors.New("boom")}
	svc, doc := newTestService(t, engine, &captureQueue{})

	first, _, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.ProcessAnalysis(context.Background(), first.ID); err == nil {
		t.Fatal("expected process error")
	}

	engine.err = nil
	engine.result = detect.Result{FinalScore: 0.1}

	second, created, err := svc.Start(context.Background(), doc.ID, "user-1")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !created {
		t.Fatal("expected a fresh analysis after failure")
	}
	if second.ID == first.ID {
		t.Fatal("expected a new analysis id")
	}
}

func TestStartConcurrentSingleFlight(t *testing.T) {
	svc, doc := newTestService(t, &stubEngine{}, &captureQueue{})

	const workers = 8
	var wg sync.WaitGroup
	createdCh := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := svc.Start(context.Background(), doc.ID, "user-1")
			if err != nil {
				t.Errorf("start: %v", err)
				return
			}
			createdCh <- created
		}()
	}
	wg.Wait()
	close(createdCh)

	createdCount := 0
	for created := range createdCh {
		if created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Fatalf("created count = %d, want 1", createdCount)
	}
}

func TestSanitizeError(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := sanitizeError(errors.New("line one\nline two\r\n" + long))
	if strings.ContainsAny(got, "\n\r") {
		t.Fatalf("expected single line, got %q", got)
	}
	if len(got) != 500 {
		t.Fatalf("len = %d, want 500", len(got))
	}
	if sanitizeError(nil) != "" {
		t.Fatal("nil error should sanitize to empty string")
	}
}
