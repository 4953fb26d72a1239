package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/models"
)

func TestModelRegistry_Resolve(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	cube, err := registry.Resolve(scopedContext(tenantID), tenantID, "sales")
	require.NoError(t, err)
	assert.Equal(t, "sales", cube.Name)
	assert.Len(t, cube.Measures, 2)
	assert.Len(t, cube.Dimensions, 2)
}

func TestModelRegistry_Resolve_UnknownCube(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	_, err := registry.Resolve(scopedContext(tenantID), tenantID, "inventory")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestModelRegistry_Resolve_NoScope(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	_, err := registry.Resolve(context.Background(), tenantID, "sales")
	assert.ErrorIs(t, err, apperrors.ErrNoTenantScope)
}

func TestModelRegistry_Resolve_ScopeTenantMismatch(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	// A scope for one tenant cannot resolve cubes on behalf of another.
	_, err := registry.Resolve(scopedContext(uuid.New()), tenantID, "sales")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestModelRegistry_PromptContexts(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	contexts, err := registry.PromptContexts(scopedContext(tenantID))
	require.NoError(t, err)
	require.Len(t, contexts, 2)

	assert.Equal(t, "customers", contexts[0].Name)
	assert.Equal(t, "sales", contexts[1].Name)

	sales := contexts[1]
	require.Len(t, sales.Measures, 2)
	assert.Equal(t, "revenue", sales.Measures[0].Name)
	assert.Equal(t, "sum", sales.Measures[0].Aggregation)
	require.Len(t, sales.Dimensions, 2)
	assert.Equal(t, "string", sales.Dimensions[0].Type)
	assert.Equal(t, []string{"customers"}, sales.Joins)
}

func TestModelRegistry_Catalog(t *testing.T) {
	tenantID := uuid.New()
	registry := NewModelRegistry(fixtureCubeRepo(tenantID), zap.NewNop())

	catalog, err := registry.Catalog(scopedContext(tenantID))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"sales", "customers"}, catalog.CubeNames)
	assert.ElementsMatch(t, []string{"revenue", "order_count", "customer_count"}, catalog.MeasureNames)
	assert.ElementsMatch(t, []string{"region", "created_at", "segment"}, catalog.DimensionNames)
}

func TestModelRegistry_Catalog_RepositoryFailure(t *testing.T) {
	repo := &mockCubeRepo{
		ListActiveFunc: func(ctx context.Context) ([]*models.Cube, error) {
			return nil, errors.New("connection reset")
		},
	}
	registry := NewModelRegistry(repo, zap.NewNop())

	_, err := registry.Catalog(scopedContext(uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load semantic model")
}
