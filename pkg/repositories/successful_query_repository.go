package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/models"
)

// SuccessfulQueryRepository stores terminally successful question/query
// pairs. Records are append-only except for rating updates and degradation
// marking.
type SuccessfulQueryRepository interface {
	Create(ctx context.Context, record *models.SuccessfulQueryRecord) error
	// GetByVectorRefs loads the non-degraded records for the given embedding
	// ids, preserving no particular order. Unknown refs are skipped.
	GetByVectorRefs(ctx context.Context, vectorRefs []uuid.UUID) ([]*models.SuccessfulQueryRecord, error)
	// UpdateRating sets the user rating (1..5) on an existing record.
	UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error
	// MarkDegraded flags a record whose embedding was lost so retrieval
	// stops considering it.
	MarkDegraded(ctx context.Context, recordID uuid.UUID) error
}

type successfulQueryRepository struct{}

func NewSuccessfulQueryRepository() SuccessfulQueryRepository {
	return &successfulQueryRepository{}
}

var _ SuccessfulQueryRepository = (*successfulQueryRepository)(nil)

func (r *successfulQueryRepository) Create(ctx context.Context, record *models.SuccessfulQueryRecord) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.TenantID = scope.TenantID

	documentJSON, err := json.Marshal(record.Document)
	if err != nil {
		return fmt.Errorf("failed to marshal dsl document: %w", err)
	}

	query := `
		INSERT INTO engine_successful_queries (
			id, tenant_id,
			original_question, rewritten_question, dsl_document, cube_name,
			execution_time_ms, row_count, user_rating,
			vector_ref, complexity, degraded
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at`

	err = scope.Conn.QueryRow(ctx, query,
		record.ID,
		record.TenantID,
		record.OriginalQuestion,
		record.RewrittenQuestion,
		documentJSON,
		record.CubeName,
		record.ExecutionTimeMs,
		record.RowCount,
		record.UserRating,
		record.VectorRef,
		record.Complexity,
		record.Degraded,
	).Scan(&record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create successful query record: %w", err)
	}

	return nil
}

func (r *successfulQueryRepository) GetByVectorRefs(ctx context.Context, vectorRefs []uuid.UUID) ([]*models.SuccessfulQueryRecord, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	if len(vectorRefs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id,
		       original_question, rewritten_question, dsl_document, cube_name,
		       execution_time_ms, row_count, user_rating,
		       vector_ref, complexity, degraded, created_at
		FROM engine_successful_queries
		WHERE tenant_id = $1 AND vector_ref = ANY($2) AND degraded = false`

	rows, err := scope.Conn.Query(ctx, query, scope.TenantID, vectorRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to get successful query records: %w", err)
	}
	defer rows.Close()

	var records []*models.SuccessfulQueryRecord
	for rows.Next() {
		var record models.SuccessfulQueryRecord
		var documentJSON []byte
		err := rows.Scan(
			&record.ID,
			&record.TenantID,
			&record.OriginalQuestion,
			&record.RewrittenQuestion,
			&documentJSON,
			&record.CubeName,
			&record.ExecutionTimeMs,
			&record.RowCount,
			&record.UserRating,
			&record.VectorRef,
			&record.Complexity,
			&record.Degraded,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan successful query record: %w", err)
		}
		if err := json.Unmarshal(documentJSON, &record.Document); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dsl document: %w", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating successful query records: %w", err)
	}

	return records, nil
}

func (r *successfulQueryRepository) UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if rating < 1 || rating > 5 {
		return apperrors.ErrInvalidRating
	}

	query := `
		UPDATE engine_successful_queries
		SET user_rating = $1
		WHERE id = $2 AND tenant_id = $3`

	tag, err := scope.Conn.Exec(ctx, query, rating, recordID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to update rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *successfulQueryRepository) MarkDegraded(ctx context.Context, recordID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	query := `
		UPDATE engine_successful_queries
		SET degraded = true
		WHERE id = $1 AND tenant_id = $2`

	tag, err := scope.Conn.Exec(ctx, query, recordID, scope.TenantID)
	if err != nil {
		return fmt.Errorf("failed to mark record degraded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}
