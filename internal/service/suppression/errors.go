package suppression

import (
	"errors"

	"github.com/ignite/outreach-core/internal/domain"
)

// Sentinel errors for the suppression service layer.
var (
	ErrNotFound          = domain.ErrContactNotFound
	ErrInvalidSignal     = errors.New("invalid signal type")
	ErrContactIDRequired = errors.New("contact id is required")
	ErrInvalidState      = errors.New("invalid lifecycle state")
)
