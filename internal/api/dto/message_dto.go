package dto

// InboundMessageRequest is the payload the delivery layer posts per message.
type InboundMessageRequest struct {
	CustomerID string `json:"customer_id"`
	Text       string `json:"text"`
	TicketRef  string `json:"ticket_ref,omitempty"`
}

// OutboundResponseBody is the rendered reply or escalation marker.
type OutboundResponseBody struct {
	TicketRef string `json:"ticket_ref"`
	Status    string `json:"status"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

// TokenRequest carries channel credentials.
type TokenRequest struct {
	ChannelID     string `json:"channel_id"`
	ChannelSecret string `json:"channel_secret"`
}

// TokenResponse carries the issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
