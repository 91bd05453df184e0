package escalation

import (
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// Reason explains a SendNextMessage outcome. Empty means sent.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonLeadIsPaused      Reason = "lead_is_paused"
	ReasonLoopComplete      Reason = "loop_complete"
	ReasonNotTimeYet        Reason = "not_time_yet"
	ReasonOutsideSendWindow Reason = "outside_send_window"
	ReasonContactDenied     Reason = "contact_denied"
	ReasonTemplateMissing   Reason = "template_missing"
	ReasonTransportError    Reason = "transport_error"
	ReasonSystemError       Reason = "system_error"
)

// IsError reports whether the reason is a true error that should be
// surfaced, as opposed to a "not now" outcome a scheduler may skip.
func (r Reason) IsError() bool {
	switch r {
	case ReasonTemplateMissing, ReasonTransportError, ReasonSystemError:
		return true
	}
	return false
}

// PauseReasonAwaitingReview is set when a contact reaches the campaign's
// pause_after_step before max_steps.
const PauseReasonAwaitingReview = "awaiting_review"

// SendResult is the outcome of one SendNextMessage call.
type SendResult struct {
	ContactID  string `json:"contact_id"`
	CampaignID string `json:"campaign_id"`
	Success    bool   `json:"success"`
	Reason     Reason `json:"reason,omitempty"`

	// IsLoopComplete is set when the contact has nothing left to send, or
	// when the step just sent reached pause_after_step.
	IsLoopComplete bool `json:"is_loop_complete"`

	// Step is the step that was sent (or attempted).
	Step              int               `json:"step,omitempty"`
	PersonaID         string            `json:"persona_id,omitempty"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	SentAt            *time.Time        `json:"sent_at,omitempty"`
	DenyReason        domain.DenyReason `json:"deny_reason,omitempty"`
	Error             string            `json:"error,omitempty"`
}

func notEligible(s *domain.EscalationState, r Reason) *SendResult {
	return &SendResult{ContactID: s.ContactID, CampaignID: s.CampaignID, Reason: r}
}

// Status is the read-only view returned by GetStatus.
type Status struct {
	ContactID       string                  `json:"contact_id"`
	CampaignID      string                  `json:"campaign_id"`
	Status          domain.EscalationStatus `json:"status"`
	CurrentStep     int                     `json:"current_step"`
	MaxSteps        int                     `json:"max_steps"`
	ProgressPercent float64                 `json:"progress_percent"`
	LastSentAt      *time.Time              `json:"last_sent_at,omitempty"`
	NextSendTime    *time.Time              `json:"next_send_time,omitempty"`
	IsComplete      bool                    `json:"is_complete"`
	IsPaused        bool                    `json:"is_paused"`
	PauseReason     string                  `json:"pause_reason,omitempty"`
}
