package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/models"
)

// CubeRepository provides read access to the tenant's semantic model.
// Cube authoring lives elsewhere; this engine only resolves and lists.
type CubeRepository interface {
	// GetByName returns the named active cube with its measures and
	// dimensions loaded. Inactive cubes are indistinguishable from
	// missing ones: both return apperrors.ErrNotFound.
	GetByName(ctx context.Context, name string) (*models.Cube, error)
	// ListActive returns all active cubes with members loaded.
	ListActive(ctx context.Context) ([]*models.Cube, error)
}

type cubeRepository struct{}

func NewCubeRepository() CubeRepository {
	return &cubeRepository{}
}

var _ CubeRepository = (*cubeRepository)(nil)

func (r *cubeRepository) GetByName(ctx context.Context, name string) (*models.Cube, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	query := `
		SELECT id, tenant_id, name, definition, is_active, created_at, updated_at
		FROM engine_cubes
		WHERE tenant_id = $1 AND name = $2 AND is_active = true`

	var cube models.Cube
	var definitionJSON []byte
	err := scope.Conn.QueryRow(ctx, query, scope.TenantID, name).Scan(
		&cube.ID,
		&cube.TenantID,
		&cube.Name,
		&definitionJSON,
		&cube.IsActive,
		&cube.CreatedAt,
		&cube.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cube: %w", err)
	}

	if err := json.Unmarshal(definitionJSON, &cube.Definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cube definition: %w", err)
	}

	if err := r.loadMembers(ctx, scope, &cube); err != nil {
		return nil, err
	}

	return &cube, nil
}

func (r *cubeRepository) ListActive(ctx context.Context) ([]*models.Cube, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	query := `
		SELECT id, tenant_id, name, definition, is_active, created_at, updated_at
		FROM engine_cubes
		WHERE tenant_id = $1 AND is_active = true
		ORDER BY name`

	rows, err := scope.Conn.Query(ctx, query, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cubes: %w", err)
	}
	defer rows.Close()

	var cubes []*models.Cube
	for rows.Next() {
		var cube models.Cube
		var definitionJSON []byte
		err := rows.Scan(
			&cube.ID,
			&cube.TenantID,
			&cube.Name,
			&definitionJSON,
			&cube.IsActive,
			&cube.CreatedAt,
			&cube.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cube: %w", err)
		}
		if err := json.Unmarshal(definitionJSON, &cube.Definition); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cube definition: %w", err)
		}
		cubes = append(cubes, &cube)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cubes: %w", err)
	}

	for _, cube := range cubes {
		if err := r.loadMembers(ctx, scope, cube); err != nil {
			return nil, err
		}
	}

	return cubes, nil
}

func (r *cubeRepository) loadMembers(ctx context.Context, scope *database.TenantScope, cube *models.Cube) error {
	measureQuery := `
		SELECT id, cube_id, name, aggregation, expression
		FROM engine_measures
		WHERE cube_id = $1
		ORDER BY name`

	rows, err := scope.Conn.Query(ctx, measureQuery, cube.ID)
	if err != nil {
		return fmt.Errorf("failed to load measures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Measure
		if err := rows.Scan(&m.ID, &m.CubeID, &m.Name, &m.Aggregation, &m.Expression); err != nil {
			return fmt.Errorf("failed to scan measure: %w", err)
		}
		cube.Measures = append(cube.Measures, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating measures: %w", err)
	}

	dimensionQuery := `
		SELECT id, cube_id, name, value_kind, expression
		FROM engine_dimensions
		WHERE cube_id = $1
		ORDER BY name`

	dimRows, err := scope.Conn.Query(ctx, dimensionQuery, cube.ID)
	if err != nil {
		return fmt.Errorf("failed to load dimensions: %w", err)
	}
	defer dimRows.Close()

	for dimRows.Next() {
		var d models.Dimension
		if err := dimRows.Scan(&d.ID, &d.CubeID, &d.Name, &d.ValueKind, &d.Expression); err != nil {
			return fmt.Errorf("failed to scan dimension: %w", err)
		}
		cube.Dimensions = append(cube.Dimensions, d)
	}
	if err := dimRows.Err(); err != nil {
		return fmt.Errorf("error iterating dimensions: %w", err)
	}

	return nil
}
