package analyses

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"plagiarism-backend/internal/documents"
	"plagiarism-backend/internal/shared/server/middleware"
	"plagiarism-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc     *Service
	limiter *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		Svc:     svc,
		limiter: newPollLimiter(pollLimitWindow, nil),
	}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/analyze", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
}

func (h *Handler) startAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	documentID := c.Param("id")
	if documentID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "document id is required", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	analysis, created, err := h.Svc.Start(ctx, documentID, userID)
	if err != nil {
		switch {
		case errors.Is(err, documents.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrAlreadyActive):
			respond.Error(c, http.StatusConflict, "already_active", "an analysis is already in progress for this document", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to start analysis", nil)
		}
		return
	}

	status := http.StatusAccepted
	if !created {
		// An analysis already covers this document; hand back its handle so
		// the client can poll it instead of queueing duplicate work.
		status = http.StatusConflict
	}
	respond.JSON(c, status, gin.H{
		"analysisId": analysis.ID,
		"status":     analysis.Status,
		"created":    created,
	})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")
	if analysisID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "analysis id is required", nil)
		return
	}

	if !h.limiter.Allow(userID, analysisID) {
		c.Header("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds()))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too frequently", nil)
		return
	}

	analysis, err := h.Svc.Get(c.Request.Context(), analysisID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
		}
		return
	}
	if analysis.UserID != userID {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}

	resp := gin.H{
		"id":         analysis.ID,
		"documentId": analysis.DocumentID,
		"status":     analysis.Status,
		"createdAt":  analysis.CreatedAt,
	}
	switch analysis.Status {
	case StatusCompleted:
		matches, err := h.Svc.Matches(c.Request.Context(), analysisID)
		if err != nil {
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch analysis", nil)
			return
		}
		resp["overallSimilarity"] = analysis.OverallSimilarity
		resp["aiGeneratedProbability"] = analysis.AIGeneratedProbability
		resp["finalScore"] = analysis.FinalScore
		if analysis.ProcessingTime != nil {
			resp["processingTime"] = *analysis.ProcessingTime
		}
		if analysis.CompletedAt != nil {
			resp["completedAt"] = *analysis.CompletedAt
		}
		resp["matches"] = matchPayloads(matches)
	case StatusFailed:
		if analysis.ErrorMessage != nil {
			resp["errorMessage"] = *analysis.ErrorMessage
		}
		if analysis.CompletedAt != nil {
			resp["completedAt"] = *analysis.CompletedAt
		}
	}

	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	analyses, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list analyses", nil)
		return
	}

	resp := make([]gin.H, 0, len(analyses))
	for _, a := range analyses {
		item := gin.H{
			"analysisId": a.ID,
			"documentId": a.DocumentID,
			"status":     a.Status,
			"createdAt":  a.CreatedAt,
		}
		if a.Status == StatusCompleted {
			item["overallSimilarity"] = a.OverallSimilarity
			item["aiGeneratedProbability"] = a.AIGeneratedProbability
			item["finalScore"] = a.FinalScore
		}
		resp = append(resp, item)
	}

	respond.JSON(c, http.StatusOK, resp)
}

func matchPayloads(matches []Match) []gin.H {
	out := make([]gin.H, 0, len(matches))
	for _, m := range matches {
		out = append(out, gin.H{
			"sourceUrl":       m.SourceURL,
			"matchedText":     m.MatchedText,
			"similarityScore": m.SimilarityScore,
			"matchType":       m.MatchType,
			"startIndex":      m.StartIndex,
			"endIndex":        m.EndIndex,
		})
	}
	return out
}
