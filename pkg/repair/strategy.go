package repair

import (
	"fmt"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

// Strategy names a corrective transformation applied when regenerating a
// DSL document after a classified failure.
type Strategy string

const (
	StrategySuggestNearestMeasure   Strategy = "suggest_nearest_measure"
	StrategySuggestNearestDimension Strategy = "suggest_nearest_dimension"
	StrategySuggestNearestCube      Strategy = "suggest_nearest_cube"
	StrategySimplifyJoin            Strategy = "simplify_join"
	StrategySimplifyQuery           Strategy = "simplify_query"
	StrategyRegenerateFromScratch   Strategy = "regenerate_from_scratch"
)

// defaultStrategies maps each category to its fixed fallback strategy, used
// when no history exists for an error pattern. permission_denied is absent:
// regeneration cannot fix it, so the loop exhausts immediately.
var defaultStrategies = map[ErrorCategory]Strategy{
	CategoryMeasureNotFound:   StrategySuggestNearestMeasure,
	CategoryDimensionNotFound: StrategySuggestNearestDimension,
	CategoryCubeNotFound:      StrategySuggestNearestCube,
	CategoryInvalidJoin:       StrategySimplifyJoin,
	CategoryTimeout:           StrategySimplifyQuery,
	CategorySyntaxError:       StrategyRegenerateFromScratch,
	CategoryInvalidReference:  StrategyRegenerateFromScratch,
	CategoryMalformedDSL:      StrategyRegenerateFromScratch,
	CategoryUnknown:           StrategyRegenerateFromScratch,
}

// DefaultStrategy returns the fixed fallback strategy for a category.
func DefaultStrategy(category ErrorCategory) (Strategy, bool) {
	s, ok := defaultStrategies[category]
	return s, ok
}

// Hint carries the prior failure and chosen strategy into the next
// generation cycle.
type Hint struct {
	Category ErrorCategory
	Pattern  string
	Strategy Strategy
	// Details is strategy-specific guidance, e.g. the nearest matching
	// member name.
	Details string
}

// SchemaCatalog exposes the member names a hint can suggest from.
type SchemaCatalog struct {
	CubeNames      []string
	MeasureNames   []string
	DimensionNames []string
}

// BuildHint assembles the repair hint for a chosen strategy, computing
// strategy-specific details from the failed document and the schema catalog.
func BuildHint(strategy Strategy, classified Classified, doc models.DSLDocument, catalog SchemaCatalog) Hint {
	hint := Hint{
		Category: classified.Category,
		Pattern:  classified.Pattern,
		Strategy: strategy,
	}

	switch strategy {
	case StrategySuggestNearestMeasure:
		hint.Details = nearestDetails("measure", doc.Measures, catalog.MeasureNames)
	case StrategySuggestNearestDimension:
		hint.Details = nearestDetails("dimension", doc.Dimensions, catalog.DimensionNames)
	case StrategySuggestNearestCube:
		if nearest, ok := NearestName(doc.Cube, catalog.CubeNames); ok {
			hint.Details = fmt.Sprintf("cube %q does not exist; the closest available cube is %q", doc.Cube, nearest)
		}
	case StrategySimplifyJoin:
		hint.Details = "remove cross-cube members and answer from the target cube alone"
	case StrategySimplifyQuery:
		hint.Details = "reduce the query: fewer dimensions, a tighter filter, and a lower limit"
	case StrategyRegenerateFromScratch:
		hint.Details = "discard the previous query and regenerate it from the schema"
	}

	return hint
}

// nearestDetails finds the first requested member that has no exact match in
// the catalog and names its closest neighbor.
func nearestDetails(kind string, requested, available []string) string {
	known := make(map[string]struct{}, len(available))
	for _, name := range available {
		known[name] = struct{}{}
	}

	for _, name := range requested {
		short := name
		if _, member, ok := strings.Cut(name, "."); ok {
			short = member
		}
		if _, ok := known[short]; ok {
			continue
		}
		if nearest, ok := NearestName(short, available); ok {
			return fmt.Sprintf("%s %q does not exist; the closest available %s is %q", kind, short, kind, nearest)
		}
	}
	return fmt.Sprintf("use only %ss that exist in the schema", kind)
}

// NearestName returns the candidate closest to target by edit distance over
// singularized, lowercased forms. Candidates further than half the target's
// length are rejected as too dissimilar.
func NearestName(target string, candidates []string) (string, bool) {
	norm := func(s string) string {
		return inflection.Singular(strings.ToLower(s))
	}

	t := norm(target)
	best := ""
	bestDist := -1
	for _, cand := range candidates {
		d := editDistance(t, norm(cand))
		if bestDist == -1 || d < bestDist {
			best = cand
			bestDist = d
		}
	}

	if best == "" || bestDist > len(t)/2+1 {
		return "", false
	}
	return best, true
}

// editDistance is plain Levenshtein distance.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
