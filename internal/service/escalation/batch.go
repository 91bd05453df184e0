package escalation

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// BatchItem is one contact's outcome within ProcessBatch.
type BatchItem struct {
	Result *SendResult `json:"result"`
	Err    error       `json:"-"`
}

// BatchReport summarizes a ProcessBatch run.
type BatchReport struct {
	Processed int         `json:"processed"`
	Sent      int         `json:"sent"`
	Skipped   int         `json:"skipped"`
	Denied    int         `json:"denied"`
	Failed    int         `json:"failed"`
	Completed int         `json:"completed"`
	Paused    int         `json:"paused"`
	Items     []BatchItem `json:"items"`
}

// ProcessBatch sends the next step for each state in order, pausing
// SendPacing between consecutive sends. One contact's failure never stops
// the batch; only ctx cancellation does.
//
// After a successful send ProcessBatch records the follow-up the result
// calls for: states that reached max_steps are marked completed, and states
// that reached an earlier pause_after_step are paused for review. Contacts
// the gate denies are paused with reason "denied:<reason>" so the scheduler
// stops selecting them; a denial that later clears (a phone number added)
// needs a Resume. Failed attempts stamp last_attempt_at so the next due
// list ranks those contacts behind the rest of the campaign.
func (s *Sequencer) ProcessBatch(ctx context.Context, states []*domain.EscalationState) BatchReport {
	report := BatchReport{Items: make([]BatchItem, 0, len(states))}

	var pacing time.Duration // owed before the next item
	for _, st := range states {
		if ctx.Err() != nil {
			break
		}
		if pacing > 0 {
			if s.sleep(ctx, pacing) != nil {
				break
			}
			pacing = 0
		}

		camp, _ := s.catalog.Get(st.CampaignID)
		res, err := s.SendNextMessage(ctx, st)
		report.Processed++
		report.Items = append(report.Items, BatchItem{Result: res, Err: err})
		if camp != nil && (res.Success || res.Reason == ReasonTransportError) {
			pacing = camp.Settings.SendPacing
		}

		switch {
		case err != nil:
			report.Failed++
			if !errors.Is(err, ErrStaleState) {
				s.recordAttempt(ctx, st)
			}
		case res.Success:
			report.Sent++
			if res.IsLoopComplete {
				s.afterLoopComplete(ctx, camp, st, &report)
			}
		case res.Reason == ReasonContactDenied:
			report.Denied++
			if _, perr := s.pause(ctx, st, "denied:"+string(res.DenyReason)); perr == nil {
				report.Paused++
			}
		default:
			report.Skipped++
		}
	}

	s.log.Info("escalation batch processed",
		"processed", report.Processed, "sent", report.Sent, "skipped", report.Skipped,
		"denied", report.Denied, "failed", report.Failed)
	return report
}

func (s *Sequencer) afterLoopComplete(ctx context.Context, camp *Campaign, st *domain.EscalationState, report *BatchReport) {
	switch {
	case st.CurrentStep >= camp.Settings.MaxSteps:
		done := Progress{
			ContactID:  st.ContactID,
			CampaignID: st.CampaignID,
			FromStep:   st.CurrentStep,
			Step:       st.CurrentStep,
			LastSentAt: st.LastSentAt,
			Completed:  true,
			UpdatedAt:  s.now(),
		}
		if err := s.states.SaveProgress(ctx, done); err != nil {
			s.log.Warn("mark escalation complete failed", "contact_id", st.ContactID, "campaign_id", st.CampaignID, "error", err)
			return
		}
		done.Apply(st)
		report.Completed++
	case st.CurrentStep == camp.Settings.PauseAfterStep:
		if _, err := s.pause(ctx, st, PauseReasonAwaitingReview); err != nil {
			s.log.Warn("pause for review failed", "contact_id", st.ContactID, "campaign_id", st.CampaignID, "error", err)
			return
		}
		report.Paused++
	}
}

func (s *Sequencer) recordAttempt(ctx context.Context, st *domain.EscalationState) {
	at := s.now()
	if err := s.states.RecordAttempt(ctx, st.ContactID, st.CampaignID, at); err != nil {
		s.log.Warn("record escalation attempt failed", "contact_id", st.ContactID, "campaign_id", st.CampaignID, "error", err)
		return
	}
	st.LastAttemptAt = &at
}
