package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/httputil"
)

type campaignView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Channel        domain.Channel    `json:"channel"`
	Steps          int               `json:"steps"`
	MaxSteps       int               `json:"max_steps"`
	PauseAfterStep int               `json:"pause_after_step"`
	InterStepDelay string            `json:"inter_step_delay"`
	Window         domain.SendWindow `json:"window"`
}

// HandleListCampaigns lists the campaign catalog.
//
//	GET /api/v1/campaigns
func (s *Server) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	cat := s.sequencer.Catalog()
	out := make([]campaignView, 0)
	for _, id := range cat.IDs() {
		c, err := cat.Get(id)
		if err != nil {
			continue
		}
		out = append(out, campaignView{
			ID:             id,
			Name:           c.Sequence.Name,
			Channel:        c.Sequence.Channel,
			Steps:          len(c.Sequence.Steps),
			MaxSteps:       c.Settings.MaxSteps,
			PauseAfterStep: c.Settings.PauseAfterStep,
			InterStepDelay: c.Settings.InterStepDelay.String(),
			Window:         c.Sequence.Window,
		})
	}
	httputil.OK(w, map[string]any{"campaigns": out})
}

// HandleEnroll enrolls contacts through the gate.
//
//	POST /api/v1/campaigns/{campaignID}/enroll
func (s *Server) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContactIDs []string `json:"contact_ids"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.ContactIDs) == 0 {
		httputil.BadRequest(w, "contact_ids is required")
		return
	}
	if len(req.ContactIDs) > maxBatchIDs {
		httputil.BadRequest(w, "too many contact_ids")
		return
	}
	report, err := s.sequencer.Enroll(r.Context(), chi.URLParam(r, "campaignID"), req.ContactIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, report)
}

// HandleEscalationStatus returns a contact's progress in a campaign.
//
//	GET /api/v1/campaigns/{campaignID}/contacts/{contactID}
func (s *Server) HandleEscalationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sequencer.GetState(r.Context(), chi.URLParam(r, "contactID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.writeStatus(w, st)
}

// HandleSendNext attempts the next step immediately, subject to the same
// eligibility rules as the scheduler. Not-eligible outcomes are 200s with a
// reason; only system and transport failures are errors.
//
//	POST /api/v1/campaigns/{campaignID}/contacts/{contactID}/send
func (s *Server) HandleSendNext(w http.ResponseWriter, r *http.Request) {
	st, err := s.sequencer.GetState(r.Context(), chi.URLParam(r, "contactID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	res, err := s.sequencer.SendNextMessage(r.Context(), st)
	if err != nil && res != nil && res.Reason.IsError() {
		s.logError("manual send failed", err)
		httputil.Coded(w, http.StatusBadGateway, string(res.Reason), "send failed", res)
		return
	}
	httputil.OK(w, res)
}

// HandlePause pauses a contact's escalation.
//
//	POST /api/v1/campaigns/{campaignID}/contacts/{contactID}/pause
func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !httputil.Decode(w, r, &req) {
		return
	}
	st, err := s.sequencer.Pause(r.Context(), chi.URLParam(r, "contactID"), chi.URLParam(r, "campaignID"), req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.writeStatus(w, st)
}

// HandleResume clears a pause. Suppression is untouched; the gate still
// applies on the next attempt.
//
//	POST /api/v1/campaigns/{campaignID}/contacts/{contactID}/resume
func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	st, err := s.sequencer.Resume(r.Context(), chi.URLParam(r, "contactID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.writeStatus(w, st)
}

// HandleReset restarts a contact's escalation from step 0.
//
//	POST /api/v1/campaigns/{campaignID}/contacts/{contactID}/reset
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	st, err := s.sequencer.ResetLoop(r.Context(), chi.URLParam(r, "contactID"), chi.URLParam(r, "campaignID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	s.writeStatus(w, st)
}

func (s *Server) writeStatus(w http.ResponseWriter, st *domain.EscalationState) {
	status, err := s.sequencer.GetStatus(st)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, status)
}
