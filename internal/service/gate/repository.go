package gate

import (
	"context"

	"github.com/ignite/outreach-core/internal/domain"
)

// Repository is the read-only persistence contract the gate depends on.
type Repository interface {
	// GetContact returns the contact. Returns ErrNotFound if it doesn't exist.
	GetContact(ctx context.Context, id string) (*domain.Contact, error)

	// GetLatestSignal returns the most recent signal for the contact whose
	// type is in types, or (nil, nil) when there is none.
	GetLatestSignal(ctx context.Context, contactID string, types []domain.SignalType) (*domain.Signal, error)
}
