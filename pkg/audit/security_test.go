package audit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedAuditor(t *testing.T) (*SecurityAuditor, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return NewSecurityAuditor(zap.New(core)), logs
}

func TestLogInjectionAttempt(t *testing.T) {
	auditor, logs := newObservedAuditor(t)
	tenantID := uuid.New()

	auditor.LogInjectionAttempt(tenantID, InjectionDetails{
		Member:      "region",
		Value:       "' OR 1=1 --",
		Fingerprint: "s&1c",
		Question:    "show me everything",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "SQL injection attempt detected", entry.Message)
	assert.Equal(t, "security_audit", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, tenantID.String(), fields["tenant_id"])
	assert.Equal(t, "region", fields["member"])
	assert.Equal(t, "s&1c", fields["fingerprint"])
	assert.Equal(t, "critical", fields["severity"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventInjectionAttempt, event.EventType)
	assert.Equal(t, tenantID, event.TenantID)
	assert.False(t, event.Timestamp.IsZero())

	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "' OR 1=1 --", details["value"])
	assert.Equal(t, "show me everything", details["question"])
}

func TestLogRepairExhausted(t *testing.T) {
	auditor, logs := newObservedAuditor(t)
	tenantID := uuid.New()

	auditor.LogRepairExhausted(tenantID, ExhaustionDetails{
		Category: "measure_not_found",
		Pattern:  "measure_not_found:reveneu",
		Cycles:   3,
		Question: "total reveneu by region",
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "Repair budget exhausted", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "measure_not_found", fields["category"])
	assert.Equal(t, int64(3), fields["cycles"])
	assert.Equal(t, "warning", fields["severity"])

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventRepairExhausted, event.EventType)

	details, ok := event.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "measure_not_found:reveneu", details["pattern"])
	assert.Equal(t, float64(3), details["cycles"])
}
