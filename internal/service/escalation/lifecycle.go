package escalation

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/domain"
)

func newStateID() string { return uuid.New().String() }

// GetState loads the state for (contactID, campaignID).
func (s *Sequencer) GetState(ctx context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	if _, err := s.catalog.Get(campaignID); err != nil {
		return nil, err
	}
	return s.states.GetState(ctx, contactID, campaignID)
}

// Pause stops the scheduler from advancing the contact until Resume.
func (s *Sequencer) Pause(ctx context.Context, contactID, campaignID, reason string) (*domain.EscalationState, error) {
	st, err := s.GetState(ctx, contactID, campaignID)
	if err != nil {
		return nil, err
	}
	return s.pause(ctx, st, reason)
}

func (s *Sequencer) pause(ctx context.Context, st *domain.EscalationState, reason string) (*domain.EscalationState, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}
	updated := st.Clone()
	updated.Paused = true
	updated.PauseReason = reason
	updated.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, updated, st.CurrentStep); err != nil {
		return nil, fmt.Errorf("pause %s/%s: %w", st.ContactID, st.CampaignID, err)
	}
	*st = *updated
	s.log.Info("escalation paused", "contact_id", st.ContactID, "campaign_id", st.CampaignID, "step", st.CurrentStep, "reason", reason)
	return updated.Clone(), nil
}

// Resume clears the pause flag and reason. It never touches suppression
// signals or the contact's lifecycle state; the gate still applies on the
// next attempt.
func (s *Sequencer) Resume(ctx context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	st, err := s.GetState(ctx, contactID, campaignID)
	if err != nil {
		return nil, err
	}
	if !st.Paused {
		return st, nil
	}
	updated := st.Clone()
	updated.Paused = false
	updated.PauseReason = ""
	updated.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, updated, st.CurrentStep); err != nil {
		return nil, fmt.Errorf("resume %s/%s: %w", contactID, campaignID, err)
	}
	s.log.Info("escalation resumed", "contact_id", contactID, "campaign_id", campaignID, "step", updated.CurrentStep)
	return updated, nil
}

// ResetLoop returns the contact to not_started: step 0, never sent, not
// paused, not completed.
func (s *Sequencer) ResetLoop(ctx context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	st, err := s.GetState(ctx, contactID, campaignID)
	if err != nil {
		return nil, err
	}
	updated := st.Clone()
	updated.CurrentStep = 0
	updated.LastSentAt = nil
	updated.LastAttemptAt = nil
	updated.Paused = false
	updated.PauseReason = ""
	updated.Completed = false
	updated.UpdatedAt = s.now()
	if err := s.states.SaveState(ctx, updated, st.CurrentStep); err != nil {
		return nil, fmt.Errorf("reset %s/%s: %w", contactID, campaignID, err)
	}
	s.log.Info("escalation reset", "contact_id", contactID, "campaign_id", campaignID, "from_step", st.CurrentStep)
	return updated, nil
}

// EnrollReport lists the per-contact outcome of Enroll.
type EnrollReport struct {
	CampaignID      string                       `json:"campaign_id"`
	Enrolled        []string                     `json:"enrolled"`
	AlreadyEnrolled []string                     `json:"already_enrolled"`
	Denied          map[string]domain.DenyReason `json:"denied"`
	Errors          map[string]string            `json:"errors"`
}

// Enroll creates not_started states for the contacts the gate allows on
// the campaign's channel. The whole list is evaluated; one bad record never
// blocks the rest.
func (s *Sequencer) Enroll(ctx context.Context, campaignID string, contactIDs []string) (*EnrollReport, error) {
	camp, err := s.catalog.Get(campaignID)
	if err != nil {
		return nil, err
	}
	report := &EnrollReport{
		CampaignID: campaignID,
		Denied:     make(map[string]domain.DenyReason),
		Errors:     make(map[string]string),
	}

	now := s.now()
	for _, r := range s.gate.EvaluateBatch(ctx, contactIDs, camp.Sequence.Channel) {
		if r.Err != nil {
			report.Errors[r.ContactID] = r.Err.Error()
			continue
		}
		if !r.Decision.Allowed {
			report.Denied[r.ContactID] = r.Decision.Reason
			continue
		}
		st := &domain.EscalationState{
			ID:         s.newID(),
			TenantID:   camp.Sequence.TenantID,
			ContactID:  r.ContactID,
			CampaignID: campaignID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		created, err := s.states.CreateState(ctx, st)
		switch {
		case err != nil:
			report.Errors[r.ContactID] = err.Error()
		case created:
			report.Enrolled = append(report.Enrolled, r.ContactID)
		default:
			report.AlreadyEnrolled = append(report.AlreadyEnrolled, r.ContactID)
		}
	}

	s.log.Info("escalation enrollment",
		"campaign_id", campaignID, "requested", len(contactIDs), "enrolled", len(report.Enrolled),
		"denied", len(report.Denied), "errors", len(report.Errors))
	return report, nil
}
