// Package api is the operator HTTP surface: gate checks, manual signals,
// inbound replies and escalation controls. Handlers are thin; every
// decision is made by the services.
package api

import (
	"context"
	"errors"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/escalation"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
	"github.com/ignite/outreach-core/internal/service/suppression"
)

// ContactStore is the contact write path used by the upsert endpoint.
type ContactStore interface {
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
	UpsertContact(ctx context.Context, c *domain.Contact) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Gate      *gate.Service
	Signals   *suppression.Service
	Contacts  ContactStore
	Router    *persona.Router
	Sequencer *escalation.Sequencer
	Health    *HealthChecker
}

// Server holds the handler dependencies.
type Server struct {
	gate      *gate.Service
	signals   *suppression.Service
	contacts  ContactStore
	router    *persona.Router
	sequencer *escalation.Sequencer
	health    *HealthChecker
}

// NewServer validates deps and returns a Server. Health is optional.
func NewServer(d Deps) (*Server, error) {
	if d.Gate == nil || d.Signals == nil || d.Contacts == nil || d.Router == nil || d.Sequencer == nil {
		return nil, errors.New("api: gate, signals, contacts, router and sequencer are required")
	}
	if d.Health == nil {
		d.Health = NewHealthChecker(nil, nil)
	}
	return &Server{
		gate:      d.Gate,
		signals:   d.Signals,
		contacts:  d.Contacts,
		router:    d.Router,
		sequencer: d.Sequencer,
		health:    d.Health,
	}, nil
}
