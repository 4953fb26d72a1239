// Package executor runs compiled analytical queries against the tenant's
// data warehouse. Adapters register themselves by dialect; the engine never
// interprets warehouse errors here, it hands them to the failure classifier.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cubelens/cubelens-engine/pkg/dsl"
)

// MaxResultRows bounds any result set regardless of the query's own limit.
const MaxResultRows = 10000

// Result holds the rows produced by one query execution.
type Result struct {
	Columns  []string
	Rows     []map[string]any
	RowCount int
	Elapsed  time.Duration
}

// Executor runs compiled queries against one warehouse connection.
type Executor interface {
	Execute(ctx context.Context, query *dsl.CompiledQuery) (*Result, error)
	Close() error
}

// Factory creates an Executor for a connection string.
type Factory func(ctx context.Context, connStr string) (Executor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register is called by each adapter's init() function.
func Register(dialect string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[dialect] = factory
}

// New creates an executor for the given dialect.
func New(ctx context.Context, dialect string, connStr string) (Executor, error) {
	registryMu.RLock()
	factory, ok := registry[dialect]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported warehouse dialect: %s", dialect)
	}
	return factory(ctx, connStr)
}

// RegisteredDialects lists the available adapter dialects.
func RegisteredDialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	dialects := make([]string, 0, len(registry))
	for d := range registry {
		dialects = append(dialects, d)
	}
	return dialects
}
