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

// RepairAttemptRepository stores the append-only repair attempt log and
// serves the aggregate views strategy selection reads. The views are plain
// aggregates over the log, so they never need invalidation.
type RepairAttemptRepository interface {
	Create(ctx context.Context, attempt *models.RepairAttempt) error
	// StrategyStats returns per-strategy success rates for one error pattern.
	StrategyStats(ctx context.Context, tenantID uuid.UUID, errorPattern string) ([]models.StrategyStat, error)
	// PatternStats returns the tenant's most frequent error patterns, for
	// diagnostics.
	PatternStats(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error)
}

type repairAttemptRepository struct{}

func NewRepairAttemptRepository() RepairAttemptRepository {
	return &repairAttemptRepository{}
}

var _ RepairAttemptRepository = (*repairAttemptRepository)(nil)

func (r *repairAttemptRepository) Create(ctx context.Context, attempt *models.RepairAttempt) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	attempt.TenantID = scope.TenantID

	originalJSON, err := json.Marshal(attempt.OriginalDSL)
	if err != nil {
		return fmt.Errorf("failed to marshal original dsl: %w", err)
	}

	var repairedJSON []byte
	if attempt.RepairedDSL != nil {
		repairedJSON, err = json.Marshal(attempt.RepairedDSL)
		if err != nil {
			return fmt.Errorf("failed to marshal repaired dsl: %w", err)
		}
	}

	query := `
		INSERT INTO engine_repair_attempts (
			id, tenant_id,
			original_dsl, error_message, error_pattern, error_category,
			repaired_dsl, repair_strategy, repair_details,
			success, execution_time_ms, cube_name, query_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	err = scope.Conn.QueryRow(ctx, query,
		attempt.ID,
		attempt.TenantID,
		originalJSON,
		attempt.ErrorMessage,
		attempt.ErrorPattern,
		attempt.ErrorCategory,
		repairedJSON,
		attempt.Strategy,
		attempt.Details,
		attempt.Success,
		attempt.ExecutionTimeMs,
		attempt.CubeName,
		attempt.QueryContext,
	).Scan(&attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create repair attempt: %w", err)
	}

	return nil
}

func (r *repairAttemptRepository) StrategyStats(ctx context.Context, tenantID uuid.UUID, errorPattern string) ([]models.StrategyStat, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	query := `
		SELECT repair_strategy, error_pattern,
		       COUNT(*) AS attempts,
		       COUNT(*) FILTER (WHERE success) AS successes,
		       COUNT(*) FILTER (WHERE success)::float / COUNT(*) AS success_rate
		FROM engine_repair_attempts
		WHERE tenant_id = $1 AND error_pattern = $2
		GROUP BY repair_strategy, error_pattern
		ORDER BY success_rate DESC, attempts DESC`

	rows, err := scope.Conn.Query(ctx, query, tenantID, errorPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy stats: %w", err)
	}
	defer rows.Close()

	var stats []models.StrategyStat
	for rows.Next() {
		var st models.StrategyStat
		if err := rows.Scan(&st.Strategy, &st.ErrorPattern, &st.Attempts, &st.Successes, &st.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan strategy stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategy stats: %w", err)
	}

	return stats, nil
}

func (r *repairAttemptRepository) PatternStats(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT error_pattern, error_category,
		       COUNT(*) AS attempts,
		       COUNT(*) FILTER (WHERE success) AS successes,
		       COUNT(*) FILTER (WHERE success)::float / COUNT(*) AS success_rate
		FROM engine_repair_attempts
		WHERE tenant_id = $1
		GROUP BY error_pattern, error_category
		ORDER BY attempts DESC
		LIMIT $2`

	rows, err := scope.Conn.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pattern stats: %w", err)
	}
	defer rows.Close()

	var stats []models.PatternStat
	for rows.Next() {
		var st models.PatternStat
		if err := rows.Scan(&st.ErrorPattern, &st.ErrorCategory, &st.Attempts, &st.Successes, &st.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan pattern stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pattern stats: %w", err)
	}

	return stats, nil
}
