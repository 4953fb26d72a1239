package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/logging"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/repositories"
	"github.com/cubelens/cubelens-engine/pkg/vector"
)

// OutcomeRecorder persists terminal pipeline outcomes: successful
// question/query pairs (with their retrieval embeddings) and repair attempt
// rows. Embedding failures degrade the record instead of failing the
// request that already succeeded.
type OutcomeRecorder struct {
	queries        repositories.SuccessfulQueryRepository
	attempts       repositories.RepairAttemptRepository
	index          vector.Index
	embedder       vector.Embedder
	embeddingModel string
	logger         *zap.Logger
}

// NewOutcomeRecorder creates the recorder.
func NewOutcomeRecorder(
	queries repositories.SuccessfulQueryRepository,
	attempts repositories.RepairAttemptRepository,
	index vector.Index,
	embedder vector.Embedder,
	embeddingModel string,
	logger *zap.Logger,
) *OutcomeRecorder {
	return &OutcomeRecorder{
		queries:        queries,
		attempts:       attempts,
		index:          index,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		logger:         logger.Named("outcome-recorder"),
	}
}

// RecordSuccess stores the record and indexes its question embedding. The
// record row is written even when embedding or indexing fails; such records
// are marked degraded so retrieval never surfaces them.
func (r *OutcomeRecorder) RecordSuccess(ctx context.Context, record *models.SuccessfulQueryRecord) error {
	record.VectorRef = uuid.New()

	// Retrieval matches incoming questions as users phrase them, so the
	// original wording is what gets embedded, not the rewritten form.
	embedding, embedErr := r.embedder.CreateEmbedding(ctx, record.OriginalQuestion, r.embeddingModel)
	if embedErr != nil {
		r.logger.Warn("embedding failed, recording degraded",
			zap.String("question", logging.TruncateQuestion(record.OriginalQuestion)),
			zap.Error(embedErr))
		record.Degraded = true
	}

	if err := r.queries.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to record successful query: %w", err)
	}

	if record.Degraded {
		return nil
	}

	if err := r.index.Upsert(ctx, record.VectorRef, record.TenantID, embedding); err != nil {
		r.logger.Warn("embedding index write failed, marking record degraded",
			zap.String("record_id", record.ID.String()),
			zap.Error(err))
		if markErr := r.queries.MarkDegraded(ctx, record.ID); markErr != nil {
			return fmt.Errorf("failed to mark record degraded: %w", markErr)
		}
		record.Degraded = true
	}

	return nil
}

// RecordRepairAttempt appends one repair cycle row to the attempt log.
func (r *OutcomeRecorder) RecordRepairAttempt(ctx context.Context, attempt *models.RepairAttempt) error {
	if err := r.attempts.Create(ctx, attempt); err != nil {
		return fmt.Errorf("failed to record repair attempt: %w", err)
	}
	return nil
}

// UpdateRating attaches a user rating to an existing successful query.
func (r *OutcomeRecorder) UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error {
	return r.queries.UpdateRating(ctx, recordID, rating)
}
