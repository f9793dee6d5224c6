package domain

// InboundMessage is one customer message handed to the flow engine by the
// message-delivery layer.
type InboundMessage struct {
	CustomerID string
	Text       string
	TicketRef  string
}

// ResponseKind distinguishes rendered replies from escalation markers.
type ResponseKind string

const (
	ResponseKindReply      ResponseKind = "reply"
	ResponseKindEscalation ResponseKind = "escalation"
)

// OutboundResponse is what the delivery layer sends back to the customer.
// Kind is always set: an escalation carries a short handover notice instead
// of the blocked draft.
type OutboundResponse struct {
	TicketID  string
	TicketRef string
	Kind      ResponseKind
	Text      string
	Status    TicketStatus
}
