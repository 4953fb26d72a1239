package executor

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/cubelens/cubelens-engine/pkg/dsl"
)

func init() {
	Register("sqlserver", func(ctx context.Context, connStr string) (Executor, error) {
		return NewMSSQLExecutor(ctx, connStr)
	})
}

// MSSQLExecutor runs compiled queries on a SQL Server warehouse. The
// compiler emits PostgreSQL-dialect SQL; this adapter translates the
// placeholder, cast, and limit syntax before execution.
type MSSQLExecutor struct {
	db *sql.DB
}

// NewMSSQLExecutor connects to the warehouse and verifies the connection.
func NewMSSQLExecutor(ctx context.Context, connStr string) (*MSSQLExecutor, error) {
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}
	return &MSSQLExecutor{db: db}, nil
}

var _ Executor = (*MSSQLExecutor)(nil)

func (e *MSSQLExecutor) Execute(ctx context.Context, query *dsl.CompiledQuery) (*Result, error) {
	start := time.Now()

	translated := translateToMSSQL(query.SQL)

	namedParams := make([]any, len(query.Args))
	for i, arg := range query.Args {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), arg)
	}

	rows, err := e.db.QueryContext(ctx, translated, namedParams...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		if len(resultRows) >= MaxResultRows {
			break
		}
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok && isStringType(columnTypes[i].DatabaseTypeName()) {
				val = string(b)
			}
			rowMap[col] = val
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

func (e *MSSQLExecutor) Close() error {
	return e.db.Close()
}

var (
	castPattern        = regexp.MustCompile(`\$(\d+)::(numeric|timestamptz|boolean)`)
	placeholderPattern = regexp.MustCompile(`\$(\d+)`)
	limitPattern       = regexp.MustCompile(`\s+LIMIT\s+(\d+)\s*$`)
	ilikePattern       = regexp.MustCompile(`\bILIKE\b`)
)

// mssqlCastTypes maps PostgreSQL cast targets to SQL Server equivalents.
var mssqlCastTypes = map[string]string{
	"numeric":     "decimal(38, 9)",
	"timestamptz": "datetimeoffset",
	"boolean":     "bit",
}

// translateToMSSQL rewrites PostgreSQL-dialect SQL for SQL Server:
// $N placeholders become @pN named parameters, ::type casts become CAST
// expressions, ILIKE becomes LIKE (SQL Server's default collation is
// case-insensitive), and a trailing LIMIT becomes OFFSET/FETCH.
func translateToMSSQL(pgSQL string) string {
	out := castPattern.ReplaceAllStringFunc(pgSQL, func(match string) string {
		parts := castPattern.FindStringSubmatch(match)
		return fmt.Sprintf("CAST(@p%s AS %s)", parts[1], mssqlCastTypes[parts[2]])
	})
	out = placeholderPattern.ReplaceAllString(out, "@p$1")
	out = ilikePattern.ReplaceAllString(out, "LIKE")

	if m := limitPattern.FindStringSubmatch(out); m != nil {
		out = limitPattern.ReplaceAllString(out, "")
		if !strings.Contains(out, "ORDER BY") {
			// OFFSET/FETCH requires an ORDER BY clause.
			out += " ORDER BY (SELECT NULL)"
		}
		out += fmt.Sprintf(" OFFSET 0 ROWS FETCH NEXT %s ROWS ONLY", m[1])
	}

	return out
}

// isStringType reports whether a SQL Server column type scans as []byte but
// should surface as a string.
func isStringType(dbType string) bool {
	switch strings.ToUpper(dbType) {
	case "CHAR", "VARCHAR", "NCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	default:
		return false
	}
}
