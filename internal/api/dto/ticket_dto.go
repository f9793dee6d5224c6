package dto

import "time"

// TicketDetail exposes a ticket for operator inspection.
type TicketDetail struct {
	ID          string            `json:"id"`
	Ref         string            `json:"ref"`
	CustomerID  string            `json:"customer_id"`
	Intent      string            `json:"intent,omitempty"`
	KnownFields map[string]string `json:"known_fields"`
	Mood        string            `json:"mood"`
	Severity    string            `json:"severity"`
	Status      string            `json:"status"`
	Escalated   bool              `json:"escalated"`
	HumanReview bool              `json:"human_review"`
	SystemError bool              `json:"system_error"`
	Draft       string            `json:"draft,omitempty"`
	TurnCount   int               `json:"turn_count"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}
