package models

import (
	"time"

	"github.com/google/uuid"
)

// AggregationKind enumerates the supported measure aggregations.
type AggregationKind string

const (
	AggregationSum           AggregationKind = "sum"
	AggregationCount         AggregationKind = "count"
	AggregationCountDistinct AggregationKind = "count_distinct"
	AggregationAvg           AggregationKind = "avg"
	AggregationMin           AggregationKind = "min"
	AggregationMax           AggregationKind = "max"
)

// ValueKind enumerates dimension value types.
type ValueKind string

const (
	ValueKindTime    ValueKind = "time"
	ValueKindString  ValueKind = "string"
	ValueKindNumber  ValueKind = "number"
	ValueKindBoolean ValueKind = "boolean"
)

// Cube is a tenant-scoped semantic dataset definition. Cubes are created and
// updated by schema management; this engine only reads them.
type Cube struct {
	ID         uuid.UUID      `json:"id"`
	TenantID   uuid.UUID      `json:"tenant_id"`
	Name       string         `json:"name"`
	Definition CubeDefinition `json:"definition"`
	IsActive   bool           `json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`

	Measures   []Measure   `json:"measures,omitempty"`
	Dimensions []Dimension `json:"dimensions,omitempty"`
}

// CubeDefinition is the cube's base relation plus its declared joins.
// Stored as JSONB.
type CubeDefinition struct {
	// SQL is the base relation, e.g. "SELECT * FROM orders".
	SQL string `json:"sql"`
	// Joins declares which other cubes this cube may be joined to.
	// Members qualified with a cube name outside this list do not resolve.
	Joins []CubeJoin `json:"joins,omitempty"`
}

// CubeJoin declares a join from one cube to another.
type CubeJoin struct {
	Cube  string `json:"cube"`
	SQLOn string `json:"sql_on"`
}

// JoinTo returns the declared join to the named cube, if any.
func (d *CubeDefinition) JoinTo(cube string) (CubeJoin, bool) {
	for _, j := range d.Joins {
		if j.Cube == cube {
			return j, true
		}
	}
	return CubeJoin{}, false
}

// Measure is an aggregatable numeric field defined on a cube.
// Names resolve uniquely within their cube.
type Measure struct {
	ID          uuid.UUID       `json:"id"`
	CubeID      uuid.UUID       `json:"cube_id"`
	Name        string          `json:"name"`
	Aggregation AggregationKind `json:"aggregation"`
	Expression  string          `json:"expression"`
}

// Dimension is a groupable/filterable attribute defined on a cube.
type Dimension struct {
	ID         uuid.UUID `json:"id"`
	CubeID     uuid.UUID `json:"cube_id"`
	Name       string    `json:"name"`
	ValueKind  ValueKind `json:"value_kind"`
	Expression string    `json:"expression"`
}

// FindMeasure resolves a measure by name within the cube.
func (c *Cube) FindMeasure(name string) (*Measure, bool) {
	for i := range c.Measures {
		if c.Measures[i].Name == name {
			return &c.Measures[i], true
		}
	}
	return nil, false
}

// FindDimension resolves a dimension by name within the cube.
func (c *Cube) FindDimension(name string) (*Dimension, bool) {
	for i := range c.Dimensions {
		if c.Dimensions[i].Name == name {
			return &c.Dimensions[i], true
		}
	}
	return nil, false
}
