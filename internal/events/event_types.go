package events

import (
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTurnProcessed     EventType = "turn_processed"
	EventTicketResolved    EventType = "ticket_resolved"
	EventEscalationRaised  EventType = "escalation_raised"
	EventComplianceBlocked EventType = "compliance_blocked"
)

// Event represents a domain event emitted by the flow engine.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	TicketID   string      `json:"ticket_id"`
	TicketRef  string      `json:"ticket_ref"`
	CustomerID string      `json:"customer_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Mood     domain.MoodLabel `json:"mood"`
	Severity domain.Severity  `json:"severity"`
}

// TurnProcessedPayload payload.
type TurnProcessedPayload struct {
	Turn     int                 `json:"turn"`
	Branch   string              `json:"branch"`
	Status   domain.TicketStatus `json:"status"`
	Mood     domain.MoodLabel    `json:"mood"`
	Severity domain.Severity     `json:"severity"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	Intent string `json:"intent"`
	Turns  int    `json:"turns"`
}

// EscalationRaisedPayload payload.
type EscalationRaisedPayload struct {
	Reason   string          `json:"reason"`
	Severity domain.Severity `json:"severity"`
}

// ComplianceBlockedPayload payload.
type ComplianceBlockedPayload struct {
	DraftPreview string `json:"draft_preview"`
}
