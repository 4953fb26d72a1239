//go:build integration

package repositories

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/testhelpers"
)

// cubeTestContext holds test dependencies for cube repository tests.
type cubeTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	repo     CubeRepository
	tenantID uuid.UUID
}

func setupCubeTest(t *testing.T) *cubeTestContext {
	return &cubeTestContext{
		t:        t,
		engineDB: testhelpers.GetEngineDB(t),
		repo:     NewCubeRepository(),
		tenantID: uuid.New(),
	}
}

// createTestContext returns a context with tenant scope for this test's tenant.
func (tc *cubeTestContext) createTestContext() (context.Context, func()) {
	tc.t.Helper()
	ctx := context.Background()
	scope, err := tc.engineDB.DB.WithTenant(ctx, tc.tenantID)
	if err != nil {
		tc.t.Fatalf("failed to create tenant scope: %v", err)
	}
	return database.SetTenantScope(ctx, scope), func() { scope.Close() }
}

// seedCube inserts a cube with one measure and one dimension directly.
func (tc *cubeTestContext) seedCube(ctx context.Context, name string, active bool) uuid.UUID {
	tc.t.Helper()
	scope, _ := database.GetTenantScope(ctx)

	cubeID := uuid.New()
	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_cubes (id, tenant_id, name, definition, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, cubeID, tc.tenantID, name, `{"sql": "SELECT * FROM orders"}`, active)
	if err != nil {
		tc.t.Fatalf("failed to seed cube: %v", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_measures (id, cube_id, name, aggregation, expression)
		VALUES ($1, $2, 'revenue', 'sum', 'amount')
	`, uuid.New(), cubeID)
	if err != nil {
		tc.t.Fatalf("failed to seed measure: %v", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_dimensions (id, cube_id, name, value_kind, expression)
		VALUES ($1, $2, 'region', 'string', 'region')
	`, uuid.New(), cubeID)
	if err != nil {
		tc.t.Fatalf("failed to seed dimension: %v", err)
	}

	return cubeID
}

func TestCubeRepository_GetByName(t *testing.T) {
	tc := setupCubeTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	tc.seedCube(ctx, "sales", true)

	cube, err := tc.repo.GetByName(ctx, "sales")
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}

	if cube.Name != "sales" {
		t.Errorf("expected cube name sales, got %s", cube.Name)
	}
	if cube.Definition.SQL != "SELECT * FROM orders" {
		t.Errorf("unexpected definition sql: %s", cube.Definition.SQL)
	}
	if len(cube.Measures) != 1 || cube.Measures[0].Name != "revenue" {
		t.Errorf("expected one measure named revenue, got %+v", cube.Measures)
	}
	if cube.Measures[0].Aggregation != models.AggregationSum {
		t.Errorf("expected sum aggregation, got %s", cube.Measures[0].Aggregation)
	}
	if len(cube.Dimensions) != 1 || cube.Dimensions[0].Name != "region" {
		t.Errorf("expected one dimension named region, got %+v", cube.Dimensions)
	}
}

func TestCubeRepository_GetByName_NotFound(t *testing.T) {
	tc := setupCubeTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	_, err := tc.repo.GetByName(ctx, "no_such_cube")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCubeRepository_GetByName_InactiveIndistinguishableFromMissing(t *testing.T) {
	tc := setupCubeTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	tc.seedCube(ctx, "retired", false)

	_, err := tc.repo.GetByName(ctx, "retired")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for inactive cube, got %v", err)
	}
}

func TestCubeRepository_GetByName_TenantIsolation(t *testing.T) {
	tc := setupCubeTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	tc.seedCube(ctx, "sales", true)

	// A different tenant must not see this tenant's cube.
	other := setupCubeTest(t)
	otherCtx, otherCleanup := other.createTestContext()
	defer otherCleanup()

	_, err := other.repo.GetByName(otherCtx, "sales")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other tenant, got %v", err)
	}
}

func TestCubeRepository_ListActive(t *testing.T) {
	tc := setupCubeTest(t)
	ctx, cleanup := tc.createTestContext()
	defer cleanup()

	tc.seedCube(ctx, "sales", true)
	tc.seedCube(ctx, "customers", true)
	tc.seedCube(ctx, "retired", false)

	cubes, err := tc.repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}

	if len(cubes) != 2 {
		t.Fatalf("expected 2 active cubes, got %d", len(cubes))
	}
	// Ordered by name
	if cubes[0].Name != "customers" || cubes[1].Name != "sales" {
		t.Errorf("unexpected cube order: %s, %s", cubes[0].Name, cubes[1].Name)
	}
	for _, cube := range cubes {
		if len(cube.Measures) == 0 || len(cube.Dimensions) == 0 {
			t.Errorf("cube %s missing members", cube.Name)
		}
	}
}

func TestCubeRepository_NoTenantScope(t *testing.T) {
	tc := setupCubeTest(t)

	_, err := tc.repo.GetByName(context.Background(), "sales")
	if !errors.Is(err, apperrors.ErrNoTenantScope) {
		t.Errorf("expected ErrNoTenantScope, got %v", err)
	}
}
