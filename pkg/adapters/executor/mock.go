package executor

import (
	"context"

	"github.com/cubelens/cubelens-engine/pkg/dsl"
)

// MockExecutor implements Executor for testing.
type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, query *dsl.CompiledQuery) (*Result, error)

	ExecuteCallCount int
	ExecutedQueries  []*dsl.CompiledQuery
	Closed           bool
}

var _ Executor = (*MockExecutor)(nil)

func (m *MockExecutor) Execute(ctx context.Context, query *dsl.CompiledQuery) (*Result, error) {
	m.ExecuteCallCount++
	m.ExecutedQueries = append(m.ExecutedQueries, query)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, query)
	}
	return &Result{Rows: []map[string]any{}, RowCount: 0}, nil
}

func (m *MockExecutor) Close() error {
	m.Closed = true
	return nil
}

// Reset clears recorded calls.
func (m *MockExecutor) Reset() {
	m.ExecuteCallCount = 0
	m.ExecutedQueries = nil
	m.Closed = false
}
