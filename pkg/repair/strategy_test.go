package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

func TestNearestName(t *testing.T) {
	catalog := []string{"revenue", "order_count", "avg_order_value"}

	tests := []struct {
		name   string
		target string
		want   string
		found  bool
	}{
		{name: "typo", target: "reveneu", want: "revenue", found: true},
		{name: "plural form", target: "revenues", want: "revenue", found: true},
		{name: "case insensitive", target: "Order_Count", want: "order_count", found: true},
		{name: "nothing close enough", target: "profit_margin", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NearestName(tt.target, catalog)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNearestName_EmptyCandidates(t *testing.T) {
	_, ok := NearestName("revenue", nil)
	assert.False(t, ok)
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("revenue", "revenue"))
	assert.Equal(t, 1, editDistance("revenue", "revenu"))
	assert.Equal(t, 2, editDistance("reveneu", "revenue"))
	assert.Equal(t, 7, editDistance("", "revenue"))
}

func TestDefaultStrategy(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     Strategy
		ok       bool
	}{
		{CategoryMeasureNotFound, StrategySuggestNearestMeasure, true},
		{CategoryDimensionNotFound, StrategySuggestNearestDimension, true},
		{CategoryCubeNotFound, StrategySuggestNearestCube, true},
		{CategoryInvalidJoin, StrategySimplifyJoin, true},
		{CategoryTimeout, StrategySimplifyQuery, true},
		{CategorySyntaxError, StrategyRegenerateFromScratch, true},
		{CategoryMalformedDSL, StrategyRegenerateFromScratch, true},
		{CategoryUnknown, StrategyRegenerateFromScratch, true},
		{CategoryPermissionDenied, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got, ok := DefaultStrategy(tt.category)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildHint_NearestMeasure(t *testing.T) {
	doc := models.DSLDocument{
		Cube:     "sales",
		Measures: []string{"reveneu"},
	}
	catalog := SchemaCatalog{MeasureNames: []string{"revenue", "order_count"}}
	classified := Classified{Category: CategoryMeasureNotFound, Pattern: `measure "?" not found`}

	hint := BuildHint(StrategySuggestNearestMeasure, classified, doc, catalog)

	assert.Equal(t, CategoryMeasureNotFound, hint.Category)
	assert.Equal(t, `measure "?" not found`, hint.Pattern)
	assert.Equal(t, StrategySuggestNearestMeasure, hint.Strategy)
	assert.Contains(t, hint.Details, `"reveneu"`)
	assert.Contains(t, hint.Details, `"revenue"`)
}

func TestBuildHint_QualifiedDimension(t *testing.T) {
	doc := models.DSLDocument{
		Cube:       "sales",
		Measures:   []string{"revenue"},
		Dimensions: []string{"customers.segmnet"},
	}
	catalog := SchemaCatalog{DimensionNames: []string{"segment", "region"}}
	classified := Classified{Category: CategoryDimensionNotFound}

	hint := BuildHint(StrategySuggestNearestDimension, classified, doc, catalog)

	assert.Contains(t, hint.Details, `"segmnet"`)
	assert.Contains(t, hint.Details, `"segment"`)
}

func TestBuildHint_NearestCube(t *testing.T) {
	doc := models.DSLDocument{Cube: "salez"}
	catalog := SchemaCatalog{CubeNames: []string{"sales", "customers"}}

	hint := BuildHint(StrategySuggestNearestCube, Classified{Category: CategoryCubeNotFound}, doc, catalog)

	assert.Contains(t, hint.Details, `"salez"`)
	assert.Contains(t, hint.Details, `"sales"`)
}

func TestBuildHint_NoNearMatchFallsBackToGenericGuidance(t *testing.T) {
	doc := models.DSLDocument{
		Cube:     "sales",
		Measures: []string{"profit_margin"},
	}
	catalog := SchemaCatalog{MeasureNames: []string{"revenue"}}

	hint := BuildHint(StrategySuggestNearestMeasure, Classified{Category: CategoryMeasureNotFound}, doc, catalog)

	assert.Equal(t, "use only measures that exist in the schema", hint.Details)
}

func TestBuildHint_FixedStrategies(t *testing.T) {
	doc := models.DSLDocument{Cube: "sales"}

	join := BuildHint(StrategySimplifyJoin, Classified{Category: CategoryInvalidJoin}, doc, SchemaCatalog{})
	assert.Contains(t, join.Details, "cross-cube")

	simplify := BuildHint(StrategySimplifyQuery, Classified{Category: CategoryTimeout}, doc, SchemaCatalog{})
	assert.Contains(t, simplify.Details, "fewer dimensions")

	regen := BuildHint(StrategyRegenerateFromScratch, Classified{Category: CategorySyntaxError}, doc, SchemaCatalog{})
	assert.Contains(t, regen.Details, "regenerate")
}
