package domain

import "time"

// OutboundMessage is a fully rendered message ready for a transport.
type OutboundMessage struct {
	Channel        Channel `json:"channel"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Subject        string  `json:"subject,omitempty"`
	Body           string  `json:"body"`
	ContactID      string  `json:"contact_id"`
	CampaignID     string  `json:"campaign_id"`
	Step           int     `json:"step"`
	IdempotencyKey string  `json:"idempotency_key"`
}

// DeliveryResult is returned by a transport after a send attempt.
type DeliveryResult struct {
	Success           bool      `json:"success"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	Error             string    `json:"error,omitempty"`
	SentAt            time.Time `json:"sent_at"`
}
