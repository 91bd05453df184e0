package api

import (
	"errors"
	"net/http"

	"github.com/ignite/outreach-core/internal/pkg/httputil"
	"github.com/ignite/outreach-core/internal/service/escalation"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
	"github.com/ignite/outreach-core/internal/service/suppression"
)

// respondServiceError maps service sentinels to status codes. Anything it
// does not recognize is logged and returned as a generic 500 so storage
// details never reach API consumers.
func respondServiceError(w http.ResponseWriter, err error) {
	var blocked *gate.BlockedError
	switch {
	case errors.As(err, &blocked):
		httputil.Coded(w, http.StatusForbidden, string(blocked.Decision.Reason),
			blocked.Decision.Reason.Description(), blocked.Decision)
	case errors.Is(err, gate.ErrNotFound):
		httputil.NotFound(w, "contact not found")
	case errors.Is(err, escalation.ErrNotFound):
		httputil.NotFound(w, "escalation not found")
	case errors.Is(err, escalation.ErrUnknownCampaign):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, persona.ErrUnknownPersona):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, escalation.ErrStaleState):
		httputil.Conflict(w, "escalation changed concurrently, retry")
	case errors.Is(err, gate.ErrInvalidChannel),
		errors.Is(err, gate.ErrContactIDRequired),
		errors.Is(err, suppression.ErrInvalidSignal),
		errors.Is(err, suppression.ErrInvalidState),
		errors.Is(err, suppression.ErrContactIDRequired):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
