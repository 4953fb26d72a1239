// Package services holds the engine's business logic: semantic model
// resolution, exemplar retrieval, query synthesis, the repair loop, and
// outcome recording.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/dsl"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/prompts"
	"github.com/cubelens/cubelens-engine/pkg/repair"
	"github.com/cubelens/cubelens-engine/pkg/repositories"
)

// ModelRegistry serves the tenant's semantic model to the rest of the
// pipeline. It is the engine's only source of cube, measure, and dimension
// definitions.
type ModelRegistry struct {
	cubes  repositories.CubeRepository
	logger *zap.Logger
}

// NewModelRegistry creates a registry over the cube repository.
func NewModelRegistry(cubes repositories.CubeRepository, logger *zap.Logger) *ModelRegistry {
	return &ModelRegistry{
		cubes:  cubes,
		logger: logger.Named("model-registry"),
	}
}

// The registry doubles as the validator's cube resolver.
var _ dsl.CubeResolver = (*ModelRegistry)(nil)

// Resolve returns the named active cube for the tenant. Inactive and
// cross-tenant cubes resolve exactly like missing ones.
func (r *ModelRegistry) Resolve(ctx context.Context, tenantID uuid.UUID, cubeName string) (*models.Cube, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if scope.TenantID != tenantID {
		// The scope's tenant is authoritative; a mismatched ask resolves
		// like a missing cube.
		return nil, apperrors.ErrNotFound
	}

	cube, err := r.cubes.GetByName(ctx, cubeName)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to resolve cube %q: %w", cubeName, err)
	}
	return cube, nil
}

// ListActive returns the tenant's active cubes with members loaded.
func (r *ModelRegistry) ListActive(ctx context.Context) ([]*models.Cube, error) {
	return r.cubes.ListActive(ctx)
}

// PromptContexts renders the tenant's semantic model for the synthesis
// prompt.
func (r *ModelRegistry) PromptContexts(ctx context.Context) ([]prompts.CubeContext, error) {
	cubes, err := r.cubes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load semantic model: %w", err)
	}

	contexts := make([]prompts.CubeContext, 0, len(cubes))
	for _, cube := range cubes {
		cc := prompts.CubeContext{Name: cube.Name}
		for _, m := range cube.Measures {
			cc.Measures = append(cc.Measures, prompts.MeasureContext{
				Name:        m.Name,
				Aggregation: string(m.Aggregation),
			})
		}
		for _, d := range cube.Dimensions {
			cc.Dimensions = append(cc.Dimensions, prompts.DimensionContext{
				Name: d.Name,
				Type: string(d.ValueKind),
			})
		}
		for _, j := range cube.Definition.Joins {
			cc.Joins = append(cc.Joins, j.Cube)
		}
		contexts = append(contexts, cc)
	}
	return contexts, nil
}

// Catalog collects every member name in the tenant's model for
// nearest-name repair hints.
func (r *ModelRegistry) Catalog(ctx context.Context) (repair.SchemaCatalog, error) {
	cubes, err := r.cubes.ListActive(ctx)
	if err != nil {
		return repair.SchemaCatalog{}, fmt.Errorf("failed to load semantic model: %w", err)
	}

	var catalog repair.SchemaCatalog
	for _, cube := range cubes {
		catalog.CubeNames = append(catalog.CubeNames, cube.Name)
		for _, m := range cube.Measures {
			catalog.MeasureNames = append(catalog.MeasureNames, m.Name)
		}
		for _, d := range cube.Dimensions {
			catalog.DimensionNames = append(catalog.DimensionNames, d.Name)
		}
	}
	return catalog, nil
}
