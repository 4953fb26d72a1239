package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cubelens/cubelens-engine/pkg/dsl"
)

func init() {
	Register("postgres", func(ctx context.Context, connStr string) (Executor, error) {
		return NewPostgresExecutor(ctx, connStr)
	})
}

// PostgresExecutor runs compiled queries on a PostgreSQL warehouse.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor connects to the warehouse and verifies the connection.
func NewPostgresExecutor(ctx context.Context, connStr string) (*PostgresExecutor, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	return &PostgresExecutor{pool: pool}, nil
}

var _ Executor = (*PostgresExecutor)(nil)

// Execute runs the compiled query with its positional parameters. pgx
// handles parameterized queries natively, so filter values never reach the
// SQL text.
func (e *PostgresExecutor) Execute(ctx context.Context, query *dsl.CompiledQuery) (*Result, error) {
	start := time.Now()

	rows, err := e.pool.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = string(fd.Name)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if len(resultRows) >= MaxResultRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			rowMap[col] = values[i]
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &Result{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
		Elapsed:  time.Since(start),
	}, nil
}

// Close releases the warehouse connection pool.
func (e *PostgresExecutor) Close() error {
	e.pool.Close()
	return nil
}
