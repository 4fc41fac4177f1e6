package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	analysisStartedTotal   atomic.Uint64
	analysisCompletedTotal atomic.Uint64
	analysisFailedTotal    atomic.Uint64
	analysisJobsReceived   atomic.Uint64
	analysisJobsCompleted  atomic.Uint64
	analysisJobsFailed     atomic.Uint64
	analysisJobsDeleted    atomic.Uint64
	searchFailedTotal      atomic.Uint64
	fetchFailedTotal       atomic.Uint64

	analysisDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
	analysisMatches  = newHistogram([]float64{0, 1, 2, 5, 10, 15, 20, 25})
)

// IncAnalysisStarted increments the started counter.
func IncAnalysisStarted() {
	analysisStartedTotal.Add(1)
}

// IncAnalysisCompleted increments the completed counter.
func IncAnalysisCompleted() {
	analysisCompletedTotal.Add(1)
}

// IncAnalysisFailed increments the failed counter.
func IncAnalysisFailed() {
	analysisFailedTotal.Add(1)
}

// IncAnalysisJobsReceived increments the queue jobs received counter.
func IncAnalysisJobsReceived() {
	analysisJobsReceived.Add(1)
}

// IncAnalysisJobsCompleted increments the queue jobs completed counter.
func IncAnalysisJobsCompleted() {
	analysisJobsCompleted.Add(1)
}

// IncAnalysisJobsFailed increments the queue jobs failed counter.
func IncAnalysisJobsFailed() {
	analysisJobsFailed.Add(1)
}

// IncAnalysisJobsDeletedUnrecoverable counts malformed jobs dropped from the queue.
func IncAnalysisJobsDeletedUnrecoverable() {
	analysisJobsDeleted.Add(1)
}

// IncSearchFailed increments the corpus search failure counter.
func IncSearchFailed() {
	searchFailedTotal.Add(1)
}

// IncFetchFailed increments the page fetch failure counter.
func IncFetchFailed() {
	fetchFailedTotal.Add(1)
}

// ObserveAnalysisDurationMs records an analysis duration in milliseconds.
func ObserveAnalysisDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	analysisDuration.Observe(value)
}

// ObserveAnalysisMatches records the match count of a completed analysis.
func ObserveAnalysisMatches(count int) {
	if count < 0 {
		count = 0
	}
	analysisMatches.Observe(float64(count))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "analysis_started_total", "Total analyses started", analysisStartedTotal.Load())
	writeCounter(&buf, "analysis_completed_total", "Total analyses completed", analysisCompletedTotal.Load())
	writeCounter(&buf, "analysis_failed_total", "Total analyses failed", analysisFailedTotal.Load())
	writeCounter(&buf, "analysis_jobs_received_total", "Total analysis jobs received from the queue", analysisJobsReceived.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed and deleted", analysisJobsCompleted.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs that failed processing", analysisJobsFailed.Load())
	writeCounter(&buf, "analysis_jobs_deleted_unrecoverable_total", "Total malformed jobs dropped from the queue", analysisJobsDeleted.Load())
	writeCounter(&buf, "corpus_search_failed_total", "Total corpus search calls that failed", searchFailedTotal.Load())
	writeCounter(&buf, "page_fetch_failed_total", "Total candidate page fetches that failed", fetchFailedTotal.Load())
	writeHistogram(&buf, "analysis_duration_ms", "Analysis duration in milliseconds", analysisDuration.Snapshot())
	writeHistogram(&buf, "analysis_matches", "Plagiarism matches per completed analysis", analysisMatches.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
