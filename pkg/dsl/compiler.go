package dsl

import (
	"fmt"
	"strings"

	"github.com/cubelens/cubelens-engine/pkg/models"
)

// compilation accumulates the resolved pieces of one document.
type compilation struct {
	target     *models.Cube
	joined     map[string]*models.Cube
	joinOrder  []string
	measures   []*member
	dimensions []*member
	filters    []resolvedFilter
	order      []resolvedOrder
}

type resolvedFilter struct {
	filter models.Filter
	member *member
}

type resolvedOrder struct {
	order  models.OrderBy
	member *member
}

func newCompilation(target *models.Cube) *compilation {
	return &compilation{
		target: target,
		joined: make(map[string]*models.Cube),
	}
}

// compile renders the resolved document to SQL with $N placeholders.
func (c *compilation) compile(doc models.DSLDocument) (*CompiledQuery, *ValidationError) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	var selects []string
	for _, d := range c.dimensions {
		selects = append(selects, fmt.Sprintf("%s AS %s", d.dimension.Expression, d.name))
	}
	for _, m := range c.measures {
		agg, verr := aggregateExpr(m.measure)
		if verr != nil {
			return nil, verr
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", agg, m.name))
	}
	sb.WriteString(strings.Join(selects, ", "))

	sb.WriteString(fmt.Sprintf(" FROM (%s) AS %s", c.target.Definition.SQL, c.target.Name))
	for _, name := range c.joinOrder {
		join, _ := c.target.Definition.JoinTo(name)
		sb.WriteString(fmt.Sprintf(" LEFT JOIN (%s) AS %s ON %s",
			c.joined[name].Definition.SQL, name, join.SQLOn))
	}

	var where, having []string
	for _, rf := range c.filters {
		var cond string
		var verr *ValidationError
		if rf.member.isMeasure() {
			// Measure filters apply to the aggregated value.
			agg, aerr := aggregateExpr(rf.member.measure)
			if aerr != nil {
				return nil, aerr
			}
			cond, args, verr = renderCondition(agg, rf, args)
			if verr != nil {
				return nil, verr
			}
			having = append(having, cond)
		} else {
			cond, args, verr = renderCondition(rf.member.dimension.Expression, rf, args)
			if verr != nil {
				return nil, verr
			}
			where = append(where, cond)
		}
	}

	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	if len(c.measures) > 0 && len(c.dimensions) > 0 {
		var groups []string
		for _, d := range c.dimensions {
			groups = append(groups, d.dimension.Expression)
		}
		sb.WriteString(" GROUP BY " + strings.Join(groups, ", "))
	}

	if len(having) > 0 {
		sb.WriteString(" HAVING " + strings.Join(having, " AND "))
	}

	if len(c.order) > 0 {
		var orders []string
		for _, ro := range c.order {
			expr, verr := c.orderExpr(ro.member)
			if verr != nil {
				return nil, verr
			}
			if strings.ToLower(ro.order.Direction) == "desc" {
				expr += " DESC"
			}
			orders = append(orders, expr)
		}
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}

	if doc.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", doc.Limit))
	}

	return &CompiledQuery{
		SQL:         sb.String(),
		Args:        args,
		Document:    doc,
		CubeName:    c.target.Name,
		JoinedCubes: append([]string(nil), c.joinOrder...),
	}, nil
}

// orderExpr orders by the select alias when the member is projected,
// otherwise by its raw (or aggregated) expression.
func (c *compilation) orderExpr(m *member) (string, *ValidationError) {
	for _, d := range c.dimensions {
		if d.name == m.name && d.cubeName == m.cubeName {
			return m.name, nil
		}
	}
	for _, ms := range c.measures {
		if ms.name == m.name && ms.cubeName == m.cubeName {
			return m.name, nil
		}
	}
	if m.isMeasure() {
		return aggregateExpr(m.measure)
	}
	return m.dimension.Expression, nil
}

func aggregateExpr(m *models.Measure) (string, *ValidationError) {
	switch m.Aggregation {
	case models.AggregationSum:
		return fmt.Sprintf("SUM(%s)", m.Expression), nil
	case models.AggregationCount:
		return fmt.Sprintf("COUNT(%s)", m.Expression), nil
	case models.AggregationCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", m.Expression), nil
	case models.AggregationAvg:
		return fmt.Sprintf("AVG(%s)", m.Expression), nil
	case models.AggregationMin:
		return fmt.Sprintf("MIN(%s)", m.Expression), nil
	case models.AggregationMax:
		return fmt.Sprintf("MAX(%s)", m.Expression), nil
	default:
		return "", &ValidationError{
			Category: CategoryMalformedDSL,
			Message:  fmt.Sprintf("unsupported aggregation %q on measure %q", m.Aggregation, m.Name),
		}
	}
}

// renderCondition renders one filter condition against expr, appending its
// values to args and returning the updated slice.
func renderCondition(expr string, rf resolvedFilter, args []any) (string, []any, *ValidationError) {
	cast := castFor(rf.member)
	f := rf.filter

	placeholder := func(v string) string {
		args = append(args, v)
		return fmt.Sprintf("$%d%s", len(args), cast)
	}

	switch f.Operator {
	case models.OpEquals:
		return fmt.Sprintf("%s = %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpNotEquals:
		return fmt.Sprintf("%s <> %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpGreaterThan:
		return fmt.Sprintf("%s > %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpGreaterEqual:
		return fmt.Sprintf("%s >= %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpLessThan:
		return fmt.Sprintf("%s < %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpLessEqual:
		return fmt.Sprintf("%s <= %s", expr, placeholder(f.Values[0])), args, nil
	case models.OpContains:
		args = append(args, "%"+f.Values[0]+"%")
		return fmt.Sprintf("%s ILIKE $%d", expr, len(args)), args, nil
	case models.OpIn:
		var placeholders []string
		for _, v := range f.Values {
			placeholders = append(placeholders, placeholder(v))
		}
		return fmt.Sprintf("%s IN (%s)", expr, strings.Join(placeholders, ", ")), args, nil
	default:
		// Unreachable: operators are checked during validation.
		return "", args, &ValidationError{
			Category: CategoryMalformedDSL,
			Message:  fmt.Sprintf("unknown filter operator %q", f.Operator),
		}
	}
}

// castFor picks a placeholder cast so text-bound values compare correctly.
func castFor(m *member) string {
	if m.isMeasure() {
		return "::numeric"
	}
	switch m.dimension.ValueKind {
	case models.ValueKindNumber:
		return "::numeric"
	case models.ValueKindTime:
		return "::timestamptz"
	case models.ValueKindBoolean:
		return "::boolean"
	default:
		return ""
	}
}
