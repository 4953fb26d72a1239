package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/repair"
	"github.com/cubelens/cubelens-engine/pkg/services"
)

type mockAnswerService struct {
	AnswerQueryFunc func(ctx context.Context, tenantID uuid.UUID, question string) (*services.Answer, error)
	Calls           int
	LastQuestion    string
}

func (m *mockAnswerService) AnswerQuery(ctx context.Context, tenantID uuid.UUID, question string) (*services.Answer, error) {
	m.Calls++
	m.LastQuestion = question
	if m.AnswerQueryFunc != nil {
		return m.AnswerQueryFunc(ctx, tenantID, question)
	}
	return &services.Answer{Question: question}, nil
}

type mockFeedbackService struct {
	UpdateRatingFunc func(ctx context.Context, recordID uuid.UUID, rating int) error
}

func (m *mockFeedbackService) UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error {
	if m.UpdateRatingFunc != nil {
		return m.UpdateRatingFunc(ctx, recordID, rating)
	}
	return nil
}

type mockRepairStatsService struct {
	PatternStatsFunc func(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error)
}

func (m *mockRepairStatsService) PatternStats(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error) {
	if m.PatternStatsFunc != nil {
		return m.PatternStatsFunc(ctx, tenantID, limit)
	}
	return nil, nil
}

// passthroughTenant skips scope establishment in unit tests.
func passthroughTenant(next http.HandlerFunc) http.HandlerFunc {
	return next
}

func newAnswerMux(answers AnswerService, feedback FeedbackService, stats RepairStatsService) *http.ServeMux {
	handler := NewAnswerHandler(answers, feedback, stats, zap.NewNop())
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, passthroughTenant)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ApiResponse {
	t.Helper()
	var envelope ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	return envelope
}

func TestAnswer_Success(t *testing.T) {
	tenantID := uuid.New()
	recordID := uuid.New()
	rewritten := "total revenue grouped by region"

	answers := &mockAnswerService{
		AnswerQueryFunc: func(ctx context.Context, tid uuid.UUID, question string) (*services.Answer, error) {
			assert.Equal(t, tenantID, tid)
			return &services.Answer{
				RecordID:          recordID,
				Question:          question,
				RewrittenQuestion: &rewritten,
				Document:          models.DSLDocument{Cube: "sales", Measures: []string{"revenue"}, Dimensions: []string{"region"}},
				SQL:               "SELECT ...",
				Columns:           []string{"region", "revenue"},
				Rows:              []map[string]any{{"region": "emea", "revenue": 10.5}},
				RowCount:          1,
				ExecutionTimeMs:   42,
				Complexity:        models.ComplexitySimple,
				Repaired:          true,
				RepairCycles:      1,
				Trace: []*models.RepairAttempt{
					{
						ErrorCategory: "measure_not_found",
						ErrorPattern:  `measure "?" does not exist in cube "?"`,
						Strategy:      "suggest_nearest_measure",
						Success:       true,
					},
				},
			}, nil
		},
	}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+tenantID.String()+"/answers", AnswerRequest{Question: "revenue by region"})
	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var resp AnswerResponse
	require.NoError(t, json.Unmarshal(data, &resp))

	assert.Equal(t, recordID.String(), resp.AnswerID)
	assert.Equal(t, "revenue by region", resp.Question)
	assert.Equal(t, &rewritten, resp.RewrittenQuestion)
	assert.Equal(t, "sales", resp.Query.Cube)
	assert.Equal(t, 1, resp.RowCount)
	assert.True(t, resp.Repaired)
	assert.Equal(t, 1, resp.RepairCycles)
	require.Len(t, resp.AttemptsTrace, 1)
	assert.Equal(t, 1, resp.AttemptsTrace[0].Cycle)
	assert.Equal(t, "suggest_nearest_measure", resp.AttemptsTrace[0].Strategy)
	assert.True(t, resp.AttemptsTrace[0].Success)
}

func TestAnswer_InvalidTenantID(t *testing.T) {
	answers := &mockAnswerService{}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/not-a-uuid/answers", AnswerRequest{Question: "revenue"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_tenant_id", decodeEnvelope(t, rec).Error)
	assert.Equal(t, 0, answers.Calls)
}

func TestAnswer_MissingQuestion(t *testing.T) {
	answers := &mockAnswerService{}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers", AnswerRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_question", decodeEnvelope(t, rec).Error)
	assert.Equal(t, 0, answers.Calls)
}

func TestAnswer_RepairExhausted(t *testing.T) {
	answers := &mockAnswerService{
		AnswerQueryFunc: func(ctx context.Context, tid uuid.UUID, question string) (*services.Answer, error) {
			return nil, &services.ExhaustedError{
				Category: repair.CategoryMeasureNotFound,
				Pattern:  `measure "?" does not exist in cube "?"`,
				Repairs:  3,
				Trace: []*models.RepairAttempt{
					{
						ErrorMessage:  `pq: measure "reveneu" not found in relation tenant_secrets_xyz`,
						ErrorPattern:  `measure "?" does not exist in cube "?"`,
						ErrorCategory: "measure_not_found",
						Strategy:      "suggest_nearest_measure",
					},
					{
						ErrorMessage:  `pq: measure "reveneu" not found in relation tenant_secrets_xyz`,
						ErrorPattern:  `measure "?" does not exist in cube "?"`,
						ErrorCategory: "measure_not_found",
						Strategy:      "regenerate_from_scratch",
					},
				},
			}
		},
	}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers", AnswerRequest{Question: "revenue"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := rec.Body.String()
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, "repair_exhausted", envelope.Error)
	assert.Contains(t, envelope.Message, "3 cycle(s)")

	// The attempt trace reaches the client with categories and strategies,
	// but the executor's own error wording does not.
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var failure AnswerFailureResponse
	require.NoError(t, json.Unmarshal(data, &failure))
	require.Len(t, failure.AttemptsTrace, 2)
	assert.Equal(t, 1, failure.AttemptsTrace[0].Cycle)
	assert.Equal(t, "measure_not_found", failure.AttemptsTrace[0].ErrorCategory)
	assert.Equal(t, "suggest_nearest_measure", failure.AttemptsTrace[0].Strategy)
	assert.Equal(t, "regenerate_from_scratch", failure.AttemptsTrace[1].Strategy)
	assert.NotContains(t, body, "tenant_secrets_xyz")
}

func TestAnswer_SynthesisFailed(t *testing.T) {
	answers := &mockAnswerService{
		AnswerQueryFunc: func(ctx context.Context, tid uuid.UUID, question string) (*services.Answer, error) {
			return nil, &services.SynthesisError{Message: "unparseable generation output"}
		},
	}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers", AnswerRequest{Question: "revenue"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "synthesis_failed", decodeEnvelope(t, rec).Error)
}

func TestAnswer_RequestDeadline(t *testing.T) {
	answers := &mockAnswerService{
		AnswerQueryFunc: func(ctx context.Context, tid uuid.UUID, question string) (*services.Answer, error) {
			return nil, fmt.Errorf("answering question: %w", context.DeadlineExceeded)
		},
	}
	mux := newAnswerMux(answers, &mockFeedbackService{}, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers", AnswerRequest{Question: "revenue"})

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "request_timeout", decodeEnvelope(t, rec).Error)
}

func TestRate_Success(t *testing.T) {
	answerID := uuid.New()
	var gotRating int
	feedback := &mockFeedbackService{
		UpdateRatingFunc: func(ctx context.Context, recordID uuid.UUID, rating int) error {
			assert.Equal(t, answerID, recordID)
			gotRating = rating
			return nil
		},
	}
	mux := newAnswerMux(&mockAnswerService{}, feedback, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers/"+answerID.String()+"/rating", RateAnswerRequest{Rating: 4})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Success)
	assert.Equal(t, 4, gotRating)
}

func TestRate_InvalidRating(t *testing.T) {
	feedback := &mockFeedbackService{
		UpdateRatingFunc: func(ctx context.Context, recordID uuid.UUID, rating int) error {
			return apperrors.ErrInvalidRating
		},
	}
	mux := newAnswerMux(&mockAnswerService{}, feedback, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers/"+uuid.NewString()+"/rating", RateAnswerRequest{Rating: 9})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_rating", decodeEnvelope(t, rec).Error)
}

func TestRate_AnswerNotFound(t *testing.T) {
	feedback := &mockFeedbackService{
		UpdateRatingFunc: func(ctx context.Context, recordID uuid.UUID, rating int) error {
			return apperrors.ErrNotFound
		},
	}
	mux := newAnswerMux(&mockAnswerService{}, feedback, &mockRepairStatsService{})

	rec := postJSON(t, mux, "/api/tenants/"+uuid.NewString()+"/answers/"+uuid.NewString()+"/rating", RateAnswerRequest{Rating: 4})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "answer_not_found", decodeEnvelope(t, rec).Error)
}

func TestPatternStats(t *testing.T) {
	stats := &mockRepairStatsService{
		PatternStatsFunc: func(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error) {
			return []models.PatternStat{
				{ErrorPattern: `measure "?" not found in cube "?"`, ErrorCategory: "measure_not_found", Attempts: 5, Successes: 4, SuccessRate: 0.8},
			}, nil
		},
	}
	mux := newAnswerMux(&mockAnswerService{}, &mockFeedbackService{}, stats)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/"+uuid.NewString()+"/repairs/patterns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var resp PatternStatsResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Len(t, resp.Patterns, 1)
	assert.InDelta(t, 0.8, resp.Patterns[0].SuccessRate, 0.001)
}

func TestPatternStats_Failure(t *testing.T) {
	stats := &mockRepairStatsService{
		PatternStatsFunc: func(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error) {
			return nil, errors.New("connection reset")
		},
	}
	mux := newAnswerMux(&mockAnswerService{}, &mockFeedbackService{}, stats)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/"+uuid.NewString()+"/repairs/patterns", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeEnvelope(t, rec).Error)
}
