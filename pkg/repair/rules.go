package repair

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleSet holds the ordered classification rules and pattern normalizers.
// The defaults cover common Postgres-flavored executor errors; deployments
// facing other engines override them with a YAML file.
type RuleSet struct {
	categories  []categoryRule
	normalizers []normalizerRule
}

type categoryRule struct {
	Category ErrorCategory `yaml:"category"`
	Match    []string      `yaml:"match"`
	compiled []*regexp.Regexp
}

func (r *categoryRule) matches(lower string) bool {
	for _, re := range r.compiled {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

type normalizerRule struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
	pattern *regexp.Regexp
}

// ruleFile is the YAML schema for external rule files.
type ruleFile struct {
	Categories  []categoryRule   `yaml:"categories"`
	Normalizers []normalizerRule `yaml:"normalizers"`
}

// DefaultRuleSet returns the built-in rules. Order matters: earlier rules
// win, so the more specific categories come first.
func DefaultRuleSet() *RuleSet {
	rs := &RuleSet{
		categories: []categoryRule{
			{Category: CategoryPermissionDenied, Match: []string{
				`permission denied`,
				`access denied`,
				`not authorized`,
				`insufficient privilege`,
			}},
			{Category: CategoryTimeout, Match: []string{
				`timeout`,
				`timed out`,
				`deadline exceeded`,
				`canceling statement due to statement timeout`,
			}},
			{Category: CategoryInvalidJoin, Match: []string{
				`missing from-clause entry`,
				`invalid reference to from-clause`,
				`could not identify an equality operator`,
				`join`,
			}},
			{Category: CategoryMeasureNotFound, Match: []string{
				`function .* does not exist`,
				`aggregate .* (does not exist|not found)`,
				`measure .* (does not exist|not found)`,
			}},
			{Category: CategoryDimensionNotFound, Match: []string{
				`column .* does not exist`,
				`dimension .* (does not exist|not found)`,
			}},
			{Category: CategorySyntaxError, Match: []string{
				`syntax error`,
				`parse error`,
				`unexpected token`,
				`unterminated quoted`,
			}},
		},
		normalizers: []normalizerRule{
			{Name: "single-quoted literal", Pattern: `'[^']*'`, Replace: `'?'`},
			{Name: "double-quoted identifier", Pattern: `"[^"]*"`, Replace: `"?"`},
			{Name: "uuid", Pattern: `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`, Replace: `<uuid>`},
			{Name: "iso timestamp", Pattern: `\d{4}-\d{2}-\d{2}[t ]\d{2}:\d{2}:\d{2}(\.\d+)?(z|[+-]\d{2}:?\d{2})?`, Replace: `<ts>`},
			{Name: "number", Pattern: `\b\d+(\.\d+)?\b`, Replace: `<n>`},
			{Name: "whitespace", Pattern: `\s+`, Replace: ` `},
		},
	}
	if err := rs.compile(); err != nil {
		// Built-in patterns are tested; a failure here is a programming error.
		panic(fmt.Sprintf("repair: invalid default rules: %v", err))
	}
	return rs
}

// LoadRuleSet reads classification rules from a YAML file. Sections left
// empty keep the built-in defaults.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file: %w", err)
	}

	defaults := DefaultRuleSet()
	rs := &RuleSet{
		categories:  file.Categories,
		normalizers: file.Normalizers,
	}
	if len(rs.categories) == 0 {
		rs.categories = defaults.categories
	}
	if len(rs.normalizers) == 0 {
		rs.normalizers = defaults.normalizers
	}

	if err := rs.compile(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) compile() error {
	for i := range rs.categories {
		rule := &rs.categories[i]
		if len(rule.compiled) == len(rule.Match) {
			continue
		}
		rule.compiled = rule.compiled[:0]
		for _, m := range rule.Match {
			re, err := regexp.Compile(m)
			if err != nil {
				return fmt.Errorf("invalid match pattern %q for category %s: %w", m, rule.Category, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
	}
	for i := range rs.normalizers {
		n := &rs.normalizers[i]
		if n.pattern != nil {
			continue
		}
		re, err := regexp.Compile(n.Pattern)
		if err != nil {
			return fmt.Errorf("invalid normalizer pattern %q (%s): %w", n.Pattern, n.Name, err)
		}
		n.pattern = re
	}
	return nil
}
