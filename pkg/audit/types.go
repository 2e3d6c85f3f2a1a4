// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// === Login flow events ===
	EventLoginStarted EventType = "auth.login_started"
	EventAuthSuccess  EventType = "auth.success"
	EventAuthFailure  EventType = "auth.failure"
	EventLogout       EventType = "auth.logout"

	// === Session gate events (per-request granularity) ===
	EventSessionDenied  EventType = "session.denied"
	EventSessionError   EventType = "session.error"
	EventTokenRevoked   EventType = "token.revoked"
	EventIDTokenInvalid EventType = "token.id_token_invalid"

	// === Traffic control events ===
	EventRateLimited  EventType = "access.rate_limited"
	EventUpstreamFail EventType = "upstream.failure"

	// === System events ===
	EventSystemStartup  EventType = "system.startup"
	EventSystemShutdown EventType = "system.shutdown"
)

// Severity represents the severity level of an audit event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents a single audit event
type Event struct {
	// ID is a unique identifier for this event
	ID string `json:"id"`

	// Type is the type of event
	Type EventType `json:"type"`

	// Severity indicates the importance of the event
	Severity Severity `json:"severity"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Actor is who triggered the event
	Actor Actor `json:"actor"`

	// Target is the request that was affected
	Target Target `json:"target"`

	// Reason is the failure message returned to the client, if any
	Reason string `json:"reason,omitempty"`

	// Details contains event-specific information
	Details map[string]interface{} `json:"details,omitempty"`

	// CorrelationID ties the event to the access log entry of the same request
	CorrelationID string `json:"correlationId,omitempty"`
}

// Actor represents who triggered an audit event
type Actor struct {
	// Subject of the session token, empty for unauthenticated requests
	Subject string `json:"subject,omitempty"`

	// SourceIP is the client address as resolved by the gateway
	SourceIP string `json:"sourceIP,omitempty"`

	// UserAgent from the request
	UserAgent string `json:"userAgent,omitempty"`
}

// Target represents the request an audit event refers to
type Target struct {
	Method string `json:"method,omitempty"`
	Path   string `json:"path"`
}

// SeverityForEventType returns the default severity for an event type
func SeverityForEventType(eventType EventType) Severity {
	switch eventType {
	// Critical events - immediate attention required
	case EventIDTokenInvalid, EventSessionError:
		return SeverityCritical

	// Warning events - should be reviewed
	case EventAuthFailure, EventSessionDenied, EventTokenRevoked,
		EventRateLimited, EventUpstreamFail:
		return SeverityWarning

	// Info events - normal operation
	default:
		return SeverityInfo
	}
}

// IsSecurityEvent reports whether the event type records a rejected request.
func IsSecurityEvent(eventType EventType) bool {
	switch eventType {
	case EventAuthFailure, EventSessionDenied, EventSessionError, EventTokenRevoked,
		EventIDTokenInvalid, EventRateLimited:
		return true
	default:
		return false
	}
}
