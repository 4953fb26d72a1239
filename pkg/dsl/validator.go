// Package dsl validates and compiles DSL documents against the semantic
// model. Validation is cheap and deterministic so obviously-broken documents
// are rejected without a round-trip to the executor.
package dsl

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

// Validation error categories. Kept as plain strings so they line up with
// the execution-error taxonomy without coupling the packages.
const (
	CategoryCubeNotFound      = "cube_not_found"
	CategoryMeasureNotFound   = "measure_not_found"
	CategoryDimensionNotFound = "dimension_not_found"
	CategoryInvalidReference  = "invalid_reference"
	CategoryMalformedDSL      = "malformed_dsl"
)

// ValidationError describes why a document failed static checks.
type ValidationError struct {
	Category string
	Message  string

	// Injection is set when the failure came from the filter value injection
	// screen, so callers can audit the offending value.
	Injection *InjectionCheckResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// CubeResolver resolves cubes by tenant and name. Inactive or cross-tenant
// cubes must be indistinguishable from missing ones.
type CubeResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID, cubeName string) (*models.Cube, error)
}

// CompiledQuery is the executor-facing request produced from a validated
// document. SQL uses $N placeholders; adapters rewrite them per dialect.
type CompiledQuery struct {
	SQL      string
	Args     []any
	Document models.DSLDocument
	CubeName string
	// JoinedCubes lists cubes joined beyond the target, in reference order.
	JoinedCubes []string
}

// Validator statically checks DSL documents and compiles them.
type Validator struct {
	resolver CubeResolver
	logger   *zap.Logger
}

// NewValidator creates a validator backed by the given cube resolver.
func NewValidator(resolver CubeResolver, logger *zap.Logger) *Validator {
	return &Validator{
		resolver: resolver,
		logger:   logger.Named("dsl"),
	}
}

// member is a resolved reference inside a document.
type member struct {
	name      string // unqualified name, used as the output column alias
	cubeName  string // owning cube
	measure   *models.Measure
	dimension *models.Dimension
}

func (m *member) isMeasure() bool { return m.measure != nil }

// Validate checks a document in order: target cube, measures, dimensions,
// filter/order references, structural sanity. On success it compiles the
// document into a CompiledQuery. Validation never mutates the document.
func (v *Validator) Validate(ctx context.Context, tenantID uuid.UUID, doc models.DSLDocument) (*CompiledQuery, *ValidationError) {
	target, err := v.resolver.Resolve(ctx, tenantID, doc.Cube)
	if err != nil {
		return nil, &ValidationError{
			Category: CategoryCubeNotFound,
			Message:  fmt.Sprintf("cube %q not found", doc.Cube),
		}
	}

	c := newCompilation(target)

	for _, name := range doc.Measures {
		m, verr := v.resolveMember(ctx, tenantID, c, name, true)
		if verr != nil {
			return nil, verr
		}
		c.measures = append(c.measures, m)
	}

	for _, name := range doc.Dimensions {
		m, verr := v.resolveMember(ctx, tenantID, c, name, false)
		if verr != nil {
			return nil, verr
		}
		c.dimensions = append(c.dimensions, m)
	}

	for _, f := range doc.Filters {
		m, verr := v.resolveReference(ctx, tenantID, c, f.Member)
		if verr != nil {
			return nil, verr
		}
		if verr := checkFilter(f, m); verr != nil {
			return nil, verr
		}
		c.filters = append(c.filters, resolvedFilter{filter: f, member: m})
	}

	for _, o := range doc.Order {
		m, verr := v.resolveReference(ctx, tenantID, c, o.Member)
		if verr != nil {
			return nil, verr
		}
		dir := strings.ToLower(o.Direction)
		if dir != "" && dir != "asc" && dir != "desc" {
			return nil, &ValidationError{
				Category: CategoryMalformedDSL,
				Message:  fmt.Sprintf("invalid order direction %q", o.Direction),
			}
		}
		c.order = append(c.order, resolvedOrder{order: o, member: m})
	}

	if len(c.measures) == 0 && len(c.dimensions) == 0 {
		return nil, &ValidationError{
			Category: CategoryMalformedDSL,
			Message:  "document has no measures and no dimensions",
		}
	}
	if doc.Limit < 0 {
		return nil, &ValidationError{
			Category: CategoryMalformedDSL,
			Message:  fmt.Sprintf("limit must not be negative, got %d", doc.Limit),
		}
	}

	compiled, cerr := c.compile(doc)
	if cerr != nil {
		return nil, cerr
	}

	v.logger.Debug("compiled DSL document",
		zap.String("cube", doc.Cube),
		zap.Int("measures", len(doc.Measures)),
		zap.Int("dimensions", len(doc.Dimensions)),
		zap.Strings("joined_cubes", compiled.JoinedCubes))

	return compiled, nil
}

// resolveMember resolves an entry of the measures or dimensions list.
// wantMeasure selects which namespace the name must resolve in.
func (v *Validator) resolveMember(ctx context.Context, tenantID uuid.UUID, c *compilation, ref string, wantMeasure bool) (*member, *ValidationError) {
	cube, name, verr := v.resolveCubeForRef(ctx, tenantID, c, ref)
	if verr != nil {
		// A qualified member whose cube cannot be joined reports in the
		// namespace the caller asked for.
		if wantMeasure {
			verr.Category = CategoryMeasureNotFound
		} else {
			verr.Category = CategoryDimensionNotFound
		}
		return nil, verr
	}

	if wantMeasure {
		if ms, ok := cube.FindMeasure(name); ok {
			return &member{name: name, cubeName: cube.Name, measure: ms}, nil
		}
		return nil, &ValidationError{
			Category: CategoryMeasureNotFound,
			Message:  fmt.Sprintf("measure %q not found in cube %q", name, cube.Name),
		}
	}

	if d, ok := cube.FindDimension(name); ok {
		return &member{name: name, cubeName: cube.Name, dimension: d}, nil
	}
	return nil, &ValidationError{
		Category: CategoryDimensionNotFound,
		Message:  fmt.Sprintf("dimension %q not found in cube %q", name, cube.Name),
	}
}

// resolveReference resolves a filter or order member, which may name either
// a measure or a dimension. Failures here are invalid_reference.
func (v *Validator) resolveReference(ctx context.Context, tenantID uuid.UUID, c *compilation, ref string) (*member, *ValidationError) {
	cube, name, verr := v.resolveCubeForRef(ctx, tenantID, c, ref)
	if verr != nil {
		verr.Category = CategoryInvalidReference
		return nil, verr
	}

	if ms, ok := cube.FindMeasure(name); ok {
		return &member{name: name, cubeName: cube.Name, measure: ms}, nil
	}
	if d, ok := cube.FindDimension(name); ok {
		return &member{name: name, cubeName: cube.Name, dimension: d}, nil
	}
	return nil, &ValidationError{
		Category: CategoryInvalidReference,
		Message:  fmt.Sprintf("%q is not a measure or dimension of cube %q", name, cube.Name),
	}
}

// resolveCubeForRef maps a possibly-qualified reference ("cube.member" or
// "member") to its owning cube. Qualified references require a join declared
// on the target cube. The returned ValidationError carries a placeholder
// category the caller overrides.
func (v *Validator) resolveCubeForRef(ctx context.Context, tenantID uuid.UUID, c *compilation, ref string) (*models.Cube, string, *ValidationError) {
	qualifier, name, qualified := strings.Cut(ref, ".")
	if !qualified {
		return c.target, ref, nil
	}
	if qualifier == c.target.Name {
		return c.target, name, nil
	}

	if _, ok := c.target.Definition.JoinTo(qualifier); !ok {
		return nil, "", &ValidationError{
			Message: fmt.Sprintf("cube %q declares no join to %q", c.target.Name, qualifier),
		}
	}

	if joined, ok := c.joined[qualifier]; ok {
		return joined, name, nil
	}

	joined, err := v.resolver.Resolve(ctx, tenantID, qualifier)
	if err != nil {
		return nil, "", &ValidationError{
			Message: fmt.Sprintf("joined cube %q not found", qualifier),
		}
	}
	c.joined[qualifier] = joined
	c.joinOrder = append(c.joinOrder, qualifier)
	return joined, name, nil
}

// checkFilter validates operator, arity, and filter values.
func checkFilter(f models.Filter, m *member) *ValidationError {
	switch f.Operator {
	case models.OpEquals, models.OpNotEquals, models.OpGreaterThan,
		models.OpGreaterEqual, models.OpLessThan, models.OpLessEqual,
		models.OpContains:
		if len(f.Values) != 1 {
			return &ValidationError{
				Category: CategoryMalformedDSL,
				Message:  fmt.Sprintf("operator %q on %q requires exactly one value", f.Operator, f.Member),
			}
		}
	case models.OpIn:
		if len(f.Values) == 0 {
			return &ValidationError{
				Category: CategoryMalformedDSL,
				Message:  fmt.Sprintf("operator %q on %q requires at least one value", f.Operator, f.Member),
			}
		}
	default:
		return &ValidationError{
			Category: CategoryMalformedDSL,
			Message:  fmt.Sprintf("unknown filter operator %q", f.Operator),
		}
	}

	// Filter values come straight from generation output; they are always
	// bound as parameters, and additionally screened for injection shapes.
	for _, val := range f.Values {
		if res := CheckFilterValue(f.Member, val); res != nil {
			return &ValidationError{
				Category:  CategoryMalformedDSL,
				Message:   fmt.Sprintf("filter value for %q failed injection check (fingerprint %s)", f.Member, res.Fingerprint),
				Injection: res,
			}
		}
	}
	return nil
}
