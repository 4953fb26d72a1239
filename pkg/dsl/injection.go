package dsl

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a filter value that matched a SQL injection
// pattern.
type InjectionCheckResult struct {
	Member      string
	Value       string
	Fingerprint string
}

// CheckFilterValue screens one filter value for SQL injection shapes.
// Filter values are always bound as parameters, so this is a second line of
// defense against generation output smuggling SQL fragments through values.
// Returns nil if the value is clean.
func CheckFilterValue(memberName, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Member:      memberName,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}
