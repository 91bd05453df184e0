package gate

import (
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// Sentinel errors for the gate service layer.
var (
	ErrNotFound          = domain.ErrContactNotFound
	ErrInvalidChannel    = errors.New("invalid channel")
	ErrContactIDRequired = errors.New("contact id is required")
)

// BlockedError is returned by AssertAllowed when the gate denies contact.
// It carries the full decision so callers can surface the specific reason.
type BlockedError struct {
	Decision domain.GateDecision
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("contact %s blocked on %s: %s",
		e.Decision.ContactID, e.Decision.Channel, e.Decision.Reason.Description())
}
