package escalation

import (
	"context"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// StateRepository persists escalation states. Implementations must be safe
// for concurrent use.
type StateRepository interface {
	// GetState returns the state for (contactID, campaignID). Returns
	// ErrNotFound if the contact is not enrolled.
	GetState(ctx context.Context, contactID, campaignID string) (*domain.EscalationState, error)

	// CreateState inserts a new state. Returns false without error when a
	// state already exists for the pair.
	CreateState(ctx context.Context, s *domain.EscalationState) (bool, error)

	// SaveState overwrites the mutable fields of s, but only if the stored
	// current_step still equals expectedStep. Returns ErrStaleState
	// otherwise and ErrNotFound when the row is missing. Used for operator
	// writes (pause, resume, reset) made from a freshly read state.
	SaveState(ctx context.Context, s *domain.EscalationState, expectedStep int) error

	// SaveProgress writes only the step fields in p: current_step,
	// last_sent_at, last_attempt_at (set to last_sent_at), completed and
	// updated_at. It applies only while the stored current_step equals
	// p.FromStep and the state is not completed. paused and pause_reason
	// are never written, so a pause that lands during a send survives it.
	// Misses return ErrStaleState or ErrNotFound as SaveState does.
	SaveProgress(ctx context.Context, p Progress) error

	// RecordAttempt sets last_attempt_at after a failed attempt. Step and
	// last_sent_at are untouched. Returns ErrNotFound when the row is
	// missing.
	RecordAttempt(ctx context.Context, contactID, campaignID string, at time.Time) error

	// ListDue returns states for a campaign that are neither paused nor
	// completed, below maxSteps, and last sent at or before sentBefore (or
	// never sent). Never-attempted states come first, then the least
	// recently attempted, so failing contacts rotate to the back.
	ListDue(ctx context.Context, q DueQuery) ([]*domain.EscalationState, error)
}

// Progress is a step-only state write.
type Progress struct {
	ContactID  string
	CampaignID string
	FromStep   int
	Step       int
	LastSentAt *time.Time
	Completed  bool
	UpdatedAt  time.Time
}

// Apply copies the progress fields onto st.
func (p Progress) Apply(st *domain.EscalationState) {
	st.CurrentStep = p.Step
	if p.LastSentAt != nil {
		t := *p.LastSentAt
		st.LastSentAt = &t
		a := t
		st.LastAttemptAt = &a
	} else {
		st.LastSentAt = nil
		st.LastAttemptAt = nil
	}
	st.Completed = p.Completed
	st.UpdatedAt = p.UpdatedAt
}

// DueQuery selects states ready for the next step.
type DueQuery struct {
	CampaignID string
	MaxSteps   int
	SentBefore time.Time
	Limit      int
}

// Transport delivers a rendered message. A nil error with Success=false is
// a provider-reported failure.
type Transport interface {
	Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error)
}
