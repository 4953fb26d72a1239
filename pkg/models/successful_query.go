package models

import (
	"time"

	"github.com/google/uuid"
)

// SuccessfulQueryRecord is written exactly once per terminal success,
// whether first-pass or post-repair. VectorRef links to the embedding in the
// retrieval index; a record whose embedding could not be stored is marked
// Degraded and never surfaces as a future exemplar. Records are never
// mutated except by a later, independent rating update.
type SuccessfulQueryRecord struct {
	ID                uuid.UUID   `json:"id"`
	TenantID          uuid.UUID   `json:"tenant_id"`
	OriginalQuestion  string      `json:"original_question"`
	RewrittenQuestion *string     `json:"rewritten_question,omitempty"`
	Document          DSLDocument `json:"dsl_document"`
	CubeName          string      `json:"cube_name"`
	ExecutionTimeMs   int         `json:"execution_time_ms"`
	RowCount          int         `json:"row_count"`
	UserRating        *int        `json:"user_rating,omitempty"` // 1..5
	VectorRef         uuid.UUID   `json:"vector_ref"`
	Complexity        Complexity  `json:"complexity"`
	Degraded          bool        `json:"degraded"`
	CreatedAt         time.Time   `json:"created_at"`
}
