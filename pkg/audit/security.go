// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags a generated
	// filter value.
	EventInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventRepairExhausted is logged when a question burns its whole repair
	// budget without producing a runnable query.
	EventRepairExhausted SecurityEventType = "repair_exhausted"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"`
}

// InjectionDetails contains specifics of a detected SQL injection shape in
// generation output.
type InjectionDetails struct {
	Member      string `json:"member"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Question    string `json:"question"`
}

// ExhaustionDetails contains specifics of an exhausted repair loop.
type ExhaustionDetails struct {
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
	Cycles   int    `json:"cycles"`
	Question string `json:"question"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace so SIEM systems can filter on it.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a generated filter value that matched a SQL
// injection pattern. The value never reached the warehouse; it is logged at
// ERROR level with "critical" severity because it means generation output
// tried to smuggle SQL through a parameter.
func (a *SecurityAuditor) LogInjectionAttempt(tenantID uuid.UUID, details InjectionDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventInjectionAttempt,
		TenantID:  tenantID,
		Details:   details,
		Severity:  "critical",
	}

	// Marshaling known types should never fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", string(eventJSON)),
		zap.String("tenant_id", tenantID.String()),
		zap.String("member", details.Member),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

// LogRepairExhausted records a question that could not be answered within
// the repair budget. Logged at WARN level; a burst of these for one tenant
// usually means a schema change broke the semantic model.
func (a *SecurityAuditor) LogRepairExhausted(tenantID uuid.UUID, details ExhaustionDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventRepairExhausted,
		TenantID:  tenantID,
		Details:   details,
		Severity:  "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Repair budget exhausted",
		zap.String("event_json", string(eventJSON)),
		zap.String("tenant_id", tenantID.String()),
		zap.String("category", details.Category),
		zap.Int("cycles", details.Cycles),
		zap.String("severity", "warning"),
	)
}
