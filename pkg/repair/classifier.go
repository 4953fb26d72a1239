// Package repair classifies pipeline failures into a stable taxonomy and
// selects corrective strategies from historical success rates.
package repair

import (
	"strings"
)

// ErrorCategory is the stable failure taxonomy shared by validation and
// execution errors.
type ErrorCategory string

const (
	CategoryCubeNotFound      ErrorCategory = "cube_not_found"
	CategoryMeasureNotFound   ErrorCategory = "measure_not_found"
	CategoryDimensionNotFound ErrorCategory = "dimension_not_found"
	CategoryInvalidReference  ErrorCategory = "invalid_reference"
	CategoryMalformedDSL      ErrorCategory = "malformed_dsl"
	CategoryInvalidJoin       ErrorCategory = "invalid_join"
	CategorySyntaxError       ErrorCategory = "syntax_error"
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryPermissionDenied  ErrorCategory = "permission_denied"
	CategoryUnknown           ErrorCategory = "unknown"
)

// Origin tells the classifier where a failure came from.
type Origin string

const (
	OriginValidation Origin = "validation"
	OriginExecution  Origin = "execution"
)

// Classified is the classifier's verdict: a taxonomy category plus a
// normalized pattern usable for historical lookup.
type Classified struct {
	Origin   Origin
	Category ErrorCategory
	Message  string
	Pattern  string
}

// Classifier normalizes raw failures. Rules are ordered; the first match
// wins, and unmatched execution errors fall through to CategoryUnknown
// rather than being dropped.
type Classifier struct {
	rules *RuleSet
}

// NewClassifier creates a classifier with the given rule set, or the
// built-in defaults when rules is nil.
func NewClassifier(rules *RuleSet) *Classifier {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &Classifier{rules: rules}
}

// ClassifyValidation wraps an already-categorized validation failure,
// deriving its normalized pattern.
func (c *Classifier) ClassifyValidation(category, message string) Classified {
	return Classified{
		Origin:   OriginValidation,
		Category: ErrorCategory(category),
		Message:  message,
		Pattern:  c.Normalize(message),
	}
}

// ClassifyExecution assigns a category to an opaque executor error by
// ordered rule matching over its text.
func (c *Classifier) ClassifyExecution(rawError string) Classified {
	lower := strings.ToLower(rawError)

	category := CategoryUnknown
	for _, rule := range c.rules.categories {
		if rule.matches(lower) {
			category = rule.Category
			break
		}
	}

	return Classified{
		Origin:   OriginExecution,
		Category: category,
		Message:  rawError,
		Pattern:  c.Normalize(rawError),
	}
}

// Normalize strips volatile substrings (literals, numbers, identifiers,
// timestamps) from an error message so semantically-equivalent failures
// across different questions share one pattern.
func (c *Classifier) Normalize(message string) string {
	out := strings.ToLower(message)
	for _, n := range c.rules.normalizers {
		out = n.pattern.ReplaceAllString(out, n.Replace)
	}
	return strings.TrimSpace(out)
}
