// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventInjectionAttempt is logged when libinjection flags a proposal payload.
	EventInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventPayloadValidation is logged when a submitted payload fails validation.
	EventPayloadValidation SecurityEventType = "payload_validation_failure"
	// EventProposalDecision is logged for every approve or reject.
	EventProposalDecision SecurityEventType = "proposal_decision"
)

// SecurityEvent represents an auditable security event.
type SecurityEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  SecurityEventType `json:"event_type"`
	ProposalID uuid.UUID         `json:"proposal_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	Actor      string            `json:"actor,omitempty"`
	Details    any               `json:"details"`
	Severity   string            `json:"severity"` // info, warning, critical
}

// InjectionDetails contains specifics of a flagged payload value.
type InjectionDetails struct {
	ProposalType string `json:"proposal_type"`
	Path         string `json:"path"`
	Value        string `json:"value"`
	Fingerprint  string `json:"fingerprint"`
}

// SecurityAuditor logs security events for SIEM consumption.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor on the "security_audit"
// logger namespace.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a rejected submission whose payload matched an
// injection pattern. Logged at ERROR with "critical" severity.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, actor string, details InjectionDetails) {
	event := a.newEvent(ctx, EventInjectionAttempt, uuid.Nil, actor, details, "critical")

	a.logger.Error("SQL injection pattern in proposal payload",
		zap.String("event_json", marshalEvent(event)),
		zap.String("proposal_type", details.ProposalType),
		zap.String("path", details.Path),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("actor", actor),
		zap.String("user_id", event.UserID),
		zap.String("severity", event.Severity),
	)
}

// LogPayloadValidation records a submission rejected as invalid. These are
// usually extractor bugs rather than attacks, so they are logged at WARN.
func (a *SecurityAuditor) LogPayloadValidation(ctx context.Context, actor, proposalType, errorMessage string) {
	event := a.newEvent(ctx, EventPayloadValidation, uuid.Nil, actor, map[string]string{
		"proposal_type": proposalType,
		"error":         errorMessage,
	}, "warning")

	a.logger.Warn("Proposal payload validation failed",
		zap.String("event_json", marshalEvent(event)),
		zap.String("proposal_type", proposalType),
		zap.String("error", errorMessage),
		zap.String("actor", actor),
		zap.String("severity", event.Severity),
	)
}

// LogProposalDecision records who approved or rejected which proposal.
func (a *SecurityAuditor) LogProposalDecision(ctx context.Context, proposalID uuid.UUID, reviewer, decision string) {
	event := a.newEvent(ctx, EventProposalDecision, proposalID, reviewer, map[string]string{
		"decision": decision,
	}, "info")

	a.logger.Info("Proposal decided",
		zap.String("event_json", marshalEvent(event)),
		zap.String("proposal_id", proposalID.String()),
		zap.String("decision", decision),
		zap.String("reviewer", reviewer),
		zap.String("severity", event.Severity),
	)
}

func (a *SecurityAuditor) newEvent(ctx context.Context, eventType SecurityEventType, proposalID uuid.UUID, actor string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp:  time.Now().UTC(),
		EventType:  eventType,
		ProposalID: proposalID,
		UserID:     auth.GetUserIDFromContext(ctx),
		Actor:      actor,
		Details:    details,
		Severity:   severity,
	}
}

// Marshaling known types does not fail.
func marshalEvent(event SecurityEvent) string {
	eventJSON, _ := json.Marshal(event)
	return string(eventJSON)
}
