package models

// DSLDocument is the structured, engine-agnostic intermediate query
// representation produced by synthesis. Documents are immutable once
// produced; every repair attempt yields a new document so the full attempt
// trail can be reconstructed.
type DSLDocument struct {
	Cube       string    `json:"cube"`
	Measures   []string  `json:"measures,omitempty"`
	Dimensions []string  `json:"dimensions,omitempty"`
	Filters    []Filter  `json:"filters,omitempty"`
	Order      []OrderBy `json:"order,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Filter constrains a measure or dimension member.
// Values are untrusted strings straight from generation output.
type Filter struct {
	Member   string   `json:"member"`
	Operator string   `json:"operator"`
	Values   []string `json:"values"`
}

// Supported filter operators.
const (
	OpEquals       = "eq"
	OpNotEquals    = "ne"
	OpGreaterThan  = "gt"
	OpGreaterEqual = "gte"
	OpLessThan     = "lt"
	OpLessEqual    = "lte"
	OpIn           = "in"
	OpContains     = "contains"
)

// OrderBy sorts results by a referenced member.
type OrderBy struct {
	Member    string `json:"member"`
	Direction string `json:"direction,omitempty"` // "asc" (default) or "desc"
}

// Complexity labels the structural complexity of a query.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)
