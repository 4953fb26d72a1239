package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/services"
)

// TenantMiddleware establishes the tenant scope for a request before the
// handler runs.
type TenantMiddleware func(http.HandlerFunc) http.HandlerFunc

// AnswerService answers natural-language questions.
type AnswerService interface {
	AnswerQuery(ctx context.Context, tenantID uuid.UUID, question string) (*services.Answer, error)
}

// FeedbackService attaches user ratings to answered questions.
type FeedbackService interface {
	UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error
}

// RepairStatsService serves the per-pattern repair success view.
type RepairStatsService interface {
	PatternStats(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error)
}

// AnswerRequest for POST body.
type AnswerRequest struct {
	Question string `json:"question"`
}

// AnswerResponse is the terminal result of one answered question.
type AnswerResponse struct {
	AnswerID          string              `json:"answer_id"`
	Question          string              `json:"question"`
	RewrittenQuestion *string             `json:"rewritten_question,omitempty"`
	Query             models.DSLDocument  `json:"query"`
	SQL               string              `json:"sql"`
	Columns           []string            `json:"columns"`
	Rows              []map[string]any    `json:"rows"`
	RowCount          int                 `json:"row_count"`
	ExecutionTimeMs   int                 `json:"execution_time_ms"`
	Complexity        string              `json:"complexity"`
	Repaired          bool                `json:"repaired"`
	RepairCycles      int                 `json:"repair_cycles"`
	ExemplarsDegraded bool                `json:"exemplars_degraded"`
	AttemptsTrace     []AttemptTraceEntry `json:"attempts_trace"`
}

// AttemptTraceEntry is one repair cycle as reported to clients. Raw executor
// error text stays server-side; clients see the taxonomy category and the
// normalized pattern only.
type AttemptTraceEntry struct {
	Cycle         int    `json:"cycle"`
	ErrorCategory string `json:"error_category"`
	ErrorPattern  string `json:"error_pattern"`
	Strategy      string `json:"repair_strategy"`
	Success       bool   `json:"success"`
}

// AnswerFailureResponse carries the attempt trace alongside a terminal
// failure envelope.
type AnswerFailureResponse struct {
	AttemptsTrace []AttemptTraceEntry `json:"attempts_trace"`
}

func attemptsTrace(rows []*models.RepairAttempt) []AttemptTraceEntry {
	entries := make([]AttemptTraceEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, AttemptTraceEntry{
			Cycle:         i + 1,
			ErrorCategory: row.ErrorCategory,
			ErrorPattern:  row.ErrorPattern,
			Strategy:      row.Strategy,
			Success:       row.Success,
		})
	}
	return entries
}

// RateAnswerRequest for POST rating body.
type RateAnswerRequest struct {
	Rating int `json:"rating"`
}

// PatternStatsResponse wraps the repair pattern view.
type PatternStatsResponse struct {
	Patterns []models.PatternStat `json:"patterns"`
}

// AnswerHandler handles question answering and feedback endpoints.
type AnswerHandler struct {
	answers  AnswerService
	feedback FeedbackService
	stats    RepairStatsService
	logger   *zap.Logger
}

// NewAnswerHandler creates a new AnswerHandler.
func NewAnswerHandler(answers AnswerService, feedback FeedbackService, stats RepairStatsService, logger *zap.Logger) *AnswerHandler {
	return &AnswerHandler{
		answers:  answers,
		feedback: feedback,
		stats:    stats,
		logger:   logger,
	}
}

// RegisterRoutes registers the answer handler's routes on the given mux.
func (h *AnswerHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}/answers"

	mux.HandleFunc("POST "+base, tenantMiddleware(h.Answer))
	mux.HandleFunc("POST "+base+"/{aid}/rating", tenantMiddleware(h.Rate))
	mux.HandleFunc("GET /api/tenants/{tid}/repairs/patterns", tenantMiddleware(h.PatternStats))
}

// Answer handles POST /api/tenants/{tid}/answers
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.parseTenant(w, r)
	if !ok {
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Question == "" {
		h.writeError(w, http.StatusBadRequest, "missing_question", "Question is required")
		return
	}

	answer, err := h.answers.AnswerQuery(r.Context(), tenantID, req.Question)
	if err != nil {
		h.writeAnswerError(w, err)
		return
	}

	data := AnswerResponse{
		AnswerID:          answer.RecordID.String(),
		Question:          answer.Question,
		RewrittenQuestion: answer.RewrittenQuestion,
		Query:             answer.Document,
		SQL:               answer.SQL,
		Columns:           answer.Columns,
		Rows:              answer.Rows,
		RowCount:          answer.RowCount,
		ExecutionTimeMs:   answer.ExecutionTimeMs,
		Complexity:        string(answer.Complexity),
		Repaired:          answer.Repaired,
		RepairCycles:      answer.RepairCycles,
		ExemplarsDegraded: answer.ExemplarsDegraded,
		AttemptsTrace:     attemptsTrace(answer.Trace),
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Rate handles POST /api/tenants/{tid}/answers/{aid}/rating
func (h *AnswerHandler) Rate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.parseTenant(w, r); !ok {
		return
	}

	answerID, err := uuid.Parse(r.PathValue("aid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_answer_id", "Invalid answer ID")
		return
	}

	var req RateAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if err := h.feedback.UpdateRating(r.Context(), answerID, req.Rating); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidRating):
			h.writeError(w, http.StatusBadRequest, "invalid_rating", "Rating must be between 1 and 5")
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "answer_not_found", "Answer not found")
		default:
			h.logger.Error("Failed to update rating",
				zap.String("answer_id", answerID.String()),
				zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to update rating")
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PatternStats handles GET /api/tenants/{tid}/repairs/patterns
func (h *AnswerHandler) PatternStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.parseTenant(w, r)
	if !ok {
		return
	}

	patterns, err := h.stats.PatternStats(r.Context(), tenantID, 0)
	if err != nil {
		h.logger.Error("Failed to load repair pattern stats",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load repair patterns")
		return
	}

	data := PatternStatsResponse{Patterns: patterns}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeAnswerError maps pipeline failures to HTTP responses.
func (h *AnswerHandler) writeAnswerError(w http.ResponseWriter, err error) {
	var synErr *services.SynthesisError
	var exhausted *services.ExhaustedError

	switch {
	case errors.As(err, &exhausted):
		envelope := ApiResponse{
			Error:   "repair_exhausted",
			Message: exhausted.Error(),
			Data:    AnswerFailureResponse{AttemptsTrace: attemptsTrace(exhausted.Trace)},
		}
		if err := WriteJSON(w, http.StatusUnprocessableEntity, envelope); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
	case errors.As(err, &synErr):
		h.writeError(w, http.StatusUnprocessableEntity, "synthesis_failed", synErr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusGatewayTimeout, "request_timeout", "Question could not be answered within the request deadline")
	default:
		h.logger.Error("Failed to answer question", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to answer question")
	}
}

func (h *AnswerHandler) parseTenant(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(r.PathValue("tid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_tenant_id", "Invalid tenant ID")
		return uuid.Nil, false
	}
	return tenantID, true
}

func (h *AnswerHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
