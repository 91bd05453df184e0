package domain

import "time"

// EscalationStatus is the derived state-machine position of an
// EscalationState.
type EscalationStatus string

const (
	EscalationNotStarted EscalationStatus = "not_started"
	EscalationInProgress EscalationStatus = "in_progress"
	EscalationPaused     EscalationStatus = "paused"
	EscalationComplete   EscalationStatus = "complete"
)

// EscalationState is the per (contact, campaign) progress through an
// escalation sequence. CurrentStep never decreases except through a reset.
type EscalationState struct {
	ID          string     `json:"id" db:"id"`
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	ContactID   string     `json:"contact_id" db:"contact_id"`
	CampaignID  string     `json:"campaign_id" db:"campaign_id"`
	CurrentStep int        `json:"current_step" db:"current_step"`
	LastSentAt  *time.Time `json:"last_sent_at" db:"last_sent_at"`
	Paused      bool       `json:"paused" db:"paused"`
	PauseReason string     `json:"pause_reason,omitempty" db:"pause_reason"`
	Completed   bool       `json:"completed" db:"completed"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	// LastAttemptAt is the latest delivery attempt, successful or not. It
	// only orders the scheduler's due list and never gates a send.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
}

// Status derives the state-machine position. Paused overlays any
// non-complete state.
func (s *EscalationState) Status(maxSteps int) EscalationStatus {
	switch {
	case s.Completed || s.CurrentStep >= maxSteps:
		return EscalationComplete
	case s.Paused:
		return EscalationPaused
	case s.CurrentStep == 0:
		return EscalationNotStarted
	default:
		return EscalationInProgress
	}
}

// Clone returns a deep copy so callers can mutate without aliasing the
// LastSentAt pointer.
func (s *EscalationState) Clone() *EscalationState {
	cp := *s
	if s.LastSentAt != nil {
		t := *s.LastSentAt
		cp.LastSentAt = &t
	}
	if s.LastAttemptAt != nil {
		t := *s.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	return &cp
}

// SequenceStep binds one step number to the message sent at that step.
// Body is a template; when empty, TemplateKey names a slot on the sending
// persona instead.
type SequenceStep struct {
	Number      int         `json:"number" yaml:"number"`
	Subject     string      `json:"subject,omitempty" yaml:"subject"`
	Body        string      `json:"body,omitempty" yaml:"body"`
	TemplateKey TemplateKey `json:"template_key,omitempty" yaml:"template_key"`
}

// SendWindow restricts sends to local business hours. A zero window
// (Start == End) is disabled.
type SendWindow struct {
	StartHour       int    `json:"start_hour" yaml:"start_hour"`
	EndHour         int    `json:"end_hour" yaml:"end_hour"`
	Timezone        string `json:"timezone" yaml:"timezone"`
	ExcludeWeekends bool   `json:"exclude_weekends" yaml:"exclude_weekends"`
}

// Enabled reports whether the window restricts anything.
func (w SendWindow) Enabled() bool { return w.StartHour != w.EndHour }

// Sequence is the fixed, ordered set of steps a campaign escalates through.
type Sequence struct {
	CampaignID string         `json:"campaign_id"`
	TenantID   string         `json:"tenant_id"`
	Name       string         `json:"name"`
	Channel    Channel        `json:"channel"`
	PersonaID  string         `json:"persona_id,omitempty"` // fixed persona; empty routes per contact
	Steps      []SequenceStep `json:"steps"`
	Window     SendWindow     `json:"window"`
}

// Step returns the step definition for number n.
func (s *Sequence) Step(n int) (SequenceStep, bool) {
	for _, st := range s.Steps {
		if st.Number == n {
			return st, true
		}
	}
	return SequenceStep{}, false
}
