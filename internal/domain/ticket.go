package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusActionRequired  TicketStatus = "ACTION_REQUIRED"
	TicketStatusPendingCustomer TicketStatus = "PENDING_CUSTOMER"
	TicketStatusResolved        TicketStatus = "RESOLVED"
)

// MoodLabel enumerates detected customer moods.
type MoodLabel string

const (
	MoodNeutral  MoodLabel = "Neutral"
	MoodHappy    MoodLabel = "Happy"
	MoodAngry    MoodLabel = "Angry"
	MoodUrgent   MoodLabel = "Urgent"
	MoodConfused MoodLabel = "Confused"
	MoodUnknown  MoodLabel = "Unknown"
)

// Severity enumerates triage tiers derived from mood.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// IntentUnknown is the reserved label for messages the classifier cannot route.
const IntentUnknown = "unknown"

// TicketFlags mark tickets that need human attention.
type TicketFlags struct {
	Escalated   bool
	HumanReview bool
	SystemError bool
}

// Ticket is the unit of conversational state for one customer issue.
// The flow engine is its sole writer; Intent never changes once set and
// KnownFields never loses a previously non-empty value.
type Ticket struct {
	ID          string
	Ref         string
	CustomerID  string
	Intent      string
	KnownFields map[string]string
	Mood        MoodLabel
	Severity    Severity
	Status      TicketStatus
	Flags       TicketFlags
	Draft       string
	TurnCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ResolvedAt  *time.Time
}

// NewTicket builds a fresh, unpersisted ticket for a customer.
func NewTicket(customerID string) *Ticket {
	now := time.Now().UTC()
	return &Ticket{
		ID:          uuid.NewString(),
		Ref:         generateTicketRef(),
		CustomerID:  customerID,
		KnownFields: map[string]string{},
		Mood:        MoodNeutral,
		Severity:    SeverityLow,
		Status:      TicketStatusActionRequired,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// LockIntent records the intent on first classification. Subsequent calls
// with a different intent are ignored: one intent per ticket.
func (t *Ticket) LockIntent(intent string) {
	if t.Intent != "" || intent == "" || intent == IntentUnknown {
		return
	}
	t.Intent = intent
}

// MergeFields folds newly extracted values into KnownFields. A field that
// already holds a non-empty value is never overwritten, so a weak extraction
// on a later turn cannot regress the ticket toward "missing".
func (t *Ticket) MergeFields(extracted map[string]string) {
	if t.KnownFields == nil {
		t.KnownFields = map[string]string{}
	}
	for name, value := range extracted {
		if value == "" {
			continue
		}
		if existing, ok := t.KnownFields[name]; ok && existing != "" {
			continue
		}
		t.KnownFields[name] = value
	}
}

// Resolve marks the ticket resolved and stamps the resolution time.
func (t *Ticket) Resolve(now time.Time) {
	t.Status = TicketStatusResolved
	resolved := now.UTC()
	t.ResolvedAt = &resolved
}

func generateTicketRef() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
