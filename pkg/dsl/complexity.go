package dsl

import (
	"strings"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

// ClassifyComplexity labels a document by its structural shape. The rule is
// a pure function of the document: identical shape always yields the same
// label.
//
//   - complex: references members of another cube (requires a join), or
//     groups by two or more dimensions
//   - medium: has any filter or explicit ordering
//   - simple: everything else
func ClassifyComplexity(doc models.DSLDocument) models.Complexity {
	if requiresJoin(doc) || len(doc.Dimensions) >= 2 {
		return models.ComplexityComplex
	}
	if len(doc.Filters) > 0 || len(doc.Order) > 0 {
		return models.ComplexityMedium
	}
	return models.ComplexitySimple
}

// requiresJoin reports whether any member is qualified with a cube other
// than the target.
func requiresJoin(doc models.DSLDocument) bool {
	refs := make([]string, 0, len(doc.Measures)+len(doc.Dimensions)+len(doc.Filters)+len(doc.Order))
	refs = append(refs, doc.Measures...)
	refs = append(refs, doc.Dimensions...)
	for _, f := range doc.Filters {
		refs = append(refs, f.Member)
	}
	for _, o := range doc.Order {
		refs = append(refs, o.Member)
	}

	for _, ref := range refs {
		qualifier, _, qualified := strings.Cut(ref, ".")
		if qualified && qualifier != doc.Cube {
			return true
		}
	}
	return false
}
