package suppression

import (
	"context"

	"github.com/ignite/outreach-core/internal/domain"
)

// Repository defines the data access contract for the signal log.
type Repository interface {
	// AppendSignal inserts a signal. Signals are never updated.
	AppendSignal(ctx context.Context, s *domain.Signal) error

	// ListSignals returns a contact's signals, newest first. limit <= 0
	// returns all of them.
	ListSignals(ctx context.Context, contactID string, limit int) ([]domain.Signal, error)

	// FindContactByAddress resolves an inbound sender (phone or email) to a
	// contact. Returns ErrNotFound if no contact matches.
	FindContactByAddress(ctx context.Context, address string) (*domain.Contact, error)

	// SetContactState transitions a contact's lifecycle state. Returns
	// ErrNotFound if the contact doesn't exist.
	SetContactState(ctx context.Context, contactID string, state domain.LifecycleState) error
}
