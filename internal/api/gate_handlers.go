package api

import (
	"net/http"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/httputil"
	"github.com/ignite/outreach-core/internal/service/gate"
)

type evaluateRequest struct {
	ContactID            string         `json:"contact_id"`
	Channel              domain.Channel `json:"channel"`
	SkipSuppressionCheck bool           `json:"skip_suppression_check"`
	SkipSignalCheck      bool           `json:"skip_signal_check"`
	// Enforce returns 403 with the deny reason instead of a 200 decision.
	Enforce bool `json:"enforce"`
}

type batchRequest struct {
	ContactIDs []string       `json:"contact_ids"`
	Channel    domain.Channel `json:"channel"`
}

type batchItem struct {
	ContactID string               `json:"contact_id"`
	Decision  *domain.GateDecision `json:"decision,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// maxBatchIDs bounds a single batch request.
const maxBatchIDs = 5000

// HandleEvaluate runs the gate for one contact.
//
//	POST /api/v1/gate/evaluate
func (s *Server) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if req.Enforce {
		d, err := s.gate.AssertAllowed(r.Context(), req.ContactID, req.Channel)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		httputil.OK(w, d)
		return
	}

	d, err := s.gate.Evaluate(r.Context(), req.ContactID, req.Channel, gate.Options{
		SkipSuppressionCheck: req.SkipSuppressionCheck,
		SkipSignalCheck:      req.SkipSignalCheck,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, d)
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	if !httputil.Decode(w, r, &req) {
		return req, false
	}
	if len(req.ContactIDs) == 0 {
		httputil.BadRequest(w, "contact_ids is required")
		return req, false
	}
	if len(req.ContactIDs) > maxBatchIDs {
		httputil.BadRequest(w, "too many contact_ids")
		return req, false
	}
	if req.Channel != "" && !req.Channel.Valid() {
		httputil.BadRequest(w, "invalid channel")
		return req, false
	}
	return req, true
}

// HandleEvaluateBatch evaluates many contacts. Per-contact read failures are
// reported inline and never fail the request.
//
//	POST /api/v1/gate/evaluate-batch
func (s *Server) HandleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}

	results := s.gate.EvaluateBatch(r.Context(), req.ContactIDs, req.Channel)
	items := make([]batchItem, len(results))
	allowed, denied, failed := 0, 0, 0
	for i, res := range results {
		items[i].ContactID = res.ContactID
		if res.Err != nil {
			items[i].Error = res.Err.Error()
			failed++
			continue
		}
		d := res.Decision
		items[i].Decision = &d
		if d.Allowed {
			allowed++
		} else {
			denied++
		}
	}

	httputil.OK(w, map[string]any{
		"total":   len(items),
		"allowed": allowed,
		"denied":  denied,
		"failed":  failed,
		"results": items,
	})
}

// HandleFilterAllowed returns only the ids the gate allows.
//
//	POST /api/v1/gate/filter
func (s *Server) HandleFilterAllowed(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	allowed, err := s.gate.FilterAllowed(r.Context(), req.ContactIDs, req.Channel)
	resp := map[string]any{"allowed": allowed}
	if allowed == nil {
		resp["allowed"] = []string{}
	}
	if err != nil {
		// Partial results are still useful; the ids that failed are excluded.
		resp["error"] = "some contacts could not be evaluated"
		s.logError("gate filter partial failure", err)
	}
	httputil.OK(w, resp)
}
