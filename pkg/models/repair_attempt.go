package models

import (
	"time"

	"github.com/google/uuid"
)

// RepairAttempt is one row per repair cycle, append-only. Rows are written
// for failed repairs too so future strategy selection can learn from them.
type RepairAttempt struct {
	ID              uuid.UUID    `json:"id"`
	TenantID        uuid.UUID    `json:"tenant_id"`
	OriginalDSL     DSLDocument  `json:"original_dsl"`
	ErrorMessage    string       `json:"error_message"`
	ErrorPattern    string       `json:"error_pattern"`
	ErrorCategory   string       `json:"error_category"`
	RepairedDSL     *DSLDocument `json:"repaired_dsl,omitempty"`
	Strategy        string       `json:"repair_strategy"`
	Details         string       `json:"repair_details,omitempty"`
	Success         bool         `json:"success"`
	ExecutionTimeMs int          `json:"execution_time_ms"`
	CubeName        string       `json:"cube_name"`
	QueryContext    string       `json:"query_context,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// PatternStat is the per-(error_pattern, error_category) success-rate view,
// recomputed from the append-only attempt log.
type PatternStat struct {
	ErrorPattern  string  `json:"error_pattern"`
	ErrorCategory string  `json:"error_category"`
	Attempts      int     `json:"attempts"`
	Successes     int     `json:"successes"`
	SuccessRate   float64 `json:"success_rate"`
}

// StrategyStat is the per-(repair_strategy, error_pattern) usage/success-rate
// view, recomputed from the append-only attempt log.
type StrategyStat struct {
	Strategy     string  `json:"repair_strategy"`
	ErrorPattern string  `json:"error_pattern"`
	Attempts     int     `json:"attempts"`
	Successes    int     `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
}
