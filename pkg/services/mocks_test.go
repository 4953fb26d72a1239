package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/models"
	"github.com/cubelens/cubelens-engine/pkg/repositories"
)

// scopedContext fakes a tenant scope for unit tests; the mock repositories
// never touch the connection.
func scopedContext(tenantID uuid.UUID) context.Context {
	return database.SetTenantScope(context.Background(), &database.TenantScope{TenantID: tenantID})
}

type mockCubeRepo struct {
	GetByNameFunc  func(ctx context.Context, name string) (*models.Cube, error)
	ListActiveFunc func(ctx context.Context) ([]*models.Cube, error)

	GetByNameCalls  int
	ListActiveCalls int
}

var _ repositories.CubeRepository = (*mockCubeRepo)(nil)

func (m *mockCubeRepo) GetByName(ctx context.Context, name string) (*models.Cube, error) {
	m.GetByNameCalls++
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCubeRepo) ListActive(ctx context.Context) ([]*models.Cube, error) {
	m.ListActiveCalls++
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

type mockQueryRepo struct {
	CreateFunc          func(ctx context.Context, record *models.SuccessfulQueryRecord) error
	GetByVectorRefsFunc func(ctx context.Context, vectorRefs []uuid.UUID) ([]*models.SuccessfulQueryRecord, error)
	UpdateRatingFunc    func(ctx context.Context, recordID uuid.UUID, rating int) error
	MarkDegradedFunc    func(ctx context.Context, recordID uuid.UUID) error

	Created     []*models.SuccessfulQueryRecord
	DegradedIDs []uuid.UUID
}

var _ repositories.SuccessfulQueryRepository = (*mockQueryRepo)(nil)

func (m *mockQueryRepo) Create(ctx context.Context, record *models.SuccessfulQueryRecord) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, record); err != nil {
			return err
		}
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if scope, ok := database.GetTenantScope(ctx); ok {
		record.TenantID = scope.TenantID
	}
	record.CreatedAt = time.Now()
	m.Created = append(m.Created, record)
	return nil
}

func (m *mockQueryRepo) GetByVectorRefs(ctx context.Context, vectorRefs []uuid.UUID) ([]*models.SuccessfulQueryRecord, error) {
	if m.GetByVectorRefsFunc != nil {
		return m.GetByVectorRefsFunc(ctx, vectorRefs)
	}
	refs := make(map[uuid.UUID]struct{}, len(vectorRefs))
	for _, ref := range vectorRefs {
		refs[ref] = struct{}{}
	}
	var out []*models.SuccessfulQueryRecord
	for _, record := range m.Created {
		if _, ok := refs[record.VectorRef]; ok && !record.Degraded {
			out = append(out, record)
		}
	}
	return out, nil
}

func (m *mockQueryRepo) UpdateRating(ctx context.Context, recordID uuid.UUID, rating int) error {
	if m.UpdateRatingFunc != nil {
		return m.UpdateRatingFunc(ctx, recordID, rating)
	}
	for _, record := range m.Created {
		if record.ID == recordID {
			r := rating
			record.UserRating = &r
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockQueryRepo) MarkDegraded(ctx context.Context, recordID uuid.UUID) error {
	if m.MarkDegradedFunc != nil {
		return m.MarkDegradedFunc(ctx, recordID)
	}
	m.DegradedIDs = append(m.DegradedIDs, recordID)
	for _, record := range m.Created {
		if record.ID == recordID {
			record.Degraded = true
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type mockAttemptRepo struct {
	CreateFunc        func(ctx context.Context, attempt *models.RepairAttempt) error
	StrategyStatsFunc func(ctx context.Context, tenantID uuid.UUID, errorPattern string) ([]models.StrategyStat, error)
	PatternStatsFunc  func(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error)

	Created []*models.RepairAttempt
}

var _ repositories.RepairAttemptRepository = (*mockAttemptRepo)(nil)

func (m *mockAttemptRepo) Create(ctx context.Context, attempt *models.RepairAttempt) error {
	if m.CreateFunc != nil {
		if err := m.CreateFunc(ctx, attempt); err != nil {
			return err
		}
	}
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if scope, ok := database.GetTenantScope(ctx); ok {
		attempt.TenantID = scope.TenantID
	}
	attempt.CreatedAt = time.Now()
	m.Created = append(m.Created, attempt)
	return nil
}

func (m *mockAttemptRepo) StrategyStats(ctx context.Context, tenantID uuid.UUID, errorPattern string) ([]models.StrategyStat, error) {
	if m.StrategyStatsFunc != nil {
		return m.StrategyStatsFunc(ctx, tenantID, errorPattern)
	}
	return nil, nil
}

func (m *mockAttemptRepo) PatternStats(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.PatternStat, error) {
	if m.PatternStatsFunc != nil {
		return m.PatternStatsFunc(ctx, tenantID, limit)
	}
	return nil, nil
}

// salesCube returns the fixture semantic model used across service tests:
// a sales cube joined to customers.
func salesCube(tenantID uuid.UUID) *models.Cube {
	cubeID := uuid.New()
	return &models.Cube{
		ID:       cubeID,
		TenantID: tenantID,
		Name:     "sales",
		Definition: models.CubeDefinition{
			SQL: "SELECT * FROM orders",
			Joins: []models.CubeJoin{
				{Cube: "customers", SQLOn: "sales.customer_id = customers.id"},
			},
		},
		IsActive: true,
		Measures: []models.Measure{
			{ID: uuid.New(), CubeID: cubeID, Name: "revenue", Aggregation: models.AggregationSum, Expression: "amount"},
			{ID: uuid.New(), CubeID: cubeID, Name: "order_count", Aggregation: models.AggregationCount, Expression: "id"},
		},
		Dimensions: []models.Dimension{
			{ID: uuid.New(), CubeID: cubeID, Name: "region", ValueKind: models.ValueKindString, Expression: "region"},
			{ID: uuid.New(), CubeID: cubeID, Name: "created_at", ValueKind: models.ValueKindTime, Expression: "created_at"},
		},
	}
}

func customersCube(tenantID uuid.UUID) *models.Cube {
	cubeID := uuid.New()
	return &models.Cube{
		ID:         cubeID,
		TenantID:   tenantID,
		Name:       "customers",
		Definition: models.CubeDefinition{SQL: "SELECT * FROM customers"},
		IsActive:   true,
		Measures: []models.Measure{
			{ID: uuid.New(), CubeID: cubeID, Name: "customer_count", Aggregation: models.AggregationCount, Expression: "id"},
		},
		Dimensions: []models.Dimension{
			{ID: uuid.New(), CubeID: cubeID, Name: "segment", ValueKind: models.ValueKindString, Expression: "segment"},
		},
	}
}

// fixtureCubeRepo serves the sales/customers fixture for one tenant.
func fixtureCubeRepo(tenantID uuid.UUID) *mockCubeRepo {
	sales := salesCube(tenantID)
	customers := customersCube(tenantID)
	byName := map[string]*models.Cube{"sales": sales, "customers": customers}

	return &mockCubeRepo{
		GetByNameFunc: func(ctx context.Context, name string) (*models.Cube, error) {
			if cube, ok := byName[name]; ok {
				return cube, nil
			}
			return nil, apperrors.ErrNotFound
		},
		ListActiveFunc: func(ctx context.Context) ([]*models.Cube, error) {
			return []*models.Cube{customers, sales}, nil
		},
	}
}
