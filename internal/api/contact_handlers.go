package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/httputil"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/service/suppression"
)

func (s *Server) logError(msg string, err error) {
	logger.Error(msg, "error", err)
}

// HandleGetContact returns a contact.
//
//	GET /api/v1/contacts/{contactID}
func (s *Server) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.contacts.GetContact(r.Context(), chi.URLParam(r, "contactID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// HandleUpsertContact creates or replaces a contact. The path id wins over
// any id in the body.
//
//	PUT /api/v1/contacts/{contactID}
func (s *Server) HandleUpsertContact(w http.ResponseWriter, r *http.Request) {
	var c domain.Contact
	if !httputil.Decode(w, r, &c) {
		return
	}
	c.ID = chi.URLParam(r, "contactID")
	if strings.TrimSpace(c.ID) == "" {
		httputil.BadRequest(w, "contact id is required")
		return
	}
	if err := s.contacts.UpsertContact(r.Context(), &c); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// HandleSetState transitions a contact's lifecycle state.
//
//	PUT /api/v1/contacts/{contactID}/state
func (s *Server) HandleSetState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State domain.LifecycleState `json:"state"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "contactID")
	if err := s.signals.SetState(r.Context(), id, req.State); err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"contact_id": id, "state": req.State})
}

// HandleAppendSignal records a suppressing signal, e.g. a compliance
// reviewer logging a verbal opt-out.
//
//	POST /api/v1/contacts/{contactID}/signals
func (s *Server) HandleAppendSignal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   domain.SignalType   `json:"type"`
		Source domain.SignalSource `json:"source"`
		Note   string              `json:"note"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "contactID")
	if _, err := s.contacts.GetContact(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	sig, err := s.signals.AppendSignal(r.Context(), id, req.Type, req.Source, req.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, sig)
}

// HandleSignalHistory lists a contact's signals, newest first.
//
//	GET /api/v1/contacts/{contactID}/signals?limit=50
func (s *Server) HandleSignalHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	sigs, err := s.signals.History(r.Context(), chi.URLParam(r, "contactID"), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}
	httputil.OK(w, map[string]any{"signals": sigs, "count": len(sigs)})
}

// HandleRouteContact shows which persona and queue a contact routes to.
//
//	GET /api/v1/contacts/{contactID}/route?channel=sms
func (s *Server) HandleRouteContact(w http.ResponseWriter, r *http.Request) {
	c, err := s.contacts.GetContact(r.Context(), chi.URLParam(r, "contactID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	ch := domain.Channel(r.URL.Query().Get("channel"))
	if ch == "" {
		ch = domain.ChannelSMS
	}
	if !ch.Valid() {
		httputil.BadRequest(w, "invalid channel")
		return
	}
	entry := s.router.Route(c, ch)
	p, _ := s.router.Registry().Get(entry.WorkerID)
	httputil.OK(w, map[string]any{"entry": entry, "persona": personaView(p)})
}

// HandleInbound records a reply. The receiving address identifies which
// persona the contact was talking to.
//
//	POST /api/v1/inbound
func (s *Server) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var msg suppression.InboundMessage
	if !httputil.Decode(w, r, &msg) {
		return
	}
	if strings.TrimSpace(msg.From) == "" {
		httputil.BadRequest(w, "from is required")
		return
	}
	res, err := s.signals.RecordInbound(r.Context(), msg)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	p := s.router.SelectByChannelIdentity(msg.To)
	httputil.OK(w, map[string]any{"result": res, "persona": personaView(p)})
}

// HandleListPersonas lists the configured personas without their templates.
//
//	GET /api/v1/personas
func (s *Server) HandleListPersonas(w http.ResponseWriter, r *http.Request) {
	all := s.router.Registry().All()
	out := make([]map[string]any, 0, len(all))
	for _, p := range all {
		out = append(out, personaView(p))
	}
	httputil.OK(w, map[string]any{"personas": out})
}

func personaView(p *domain.Persona) map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"id":               p.ID,
		"name":             p.Name,
		"role":             p.Role,
		"channel_identity": p.ChannelIdentity,
		"email_identity":   p.EmailIdentity,
	}
}
