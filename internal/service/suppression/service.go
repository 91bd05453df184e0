package suppression

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// Service implements signal-log business logic. It is safe for concurrent
// use.
type Service struct {
	repo Repository
	now  func() time.Time
	log  *logger.Logger
}

// NewService creates a suppression service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now, log: logger.New("suppression")}
}

// AppendSignal records a suppressing signal against a contact. The signal
// is insert-only; recording the same fact twice yields two entries.
func (s *Service) AppendSignal(ctx context.Context, contactID string, t domain.SignalType, source domain.SignalSource, note string) (*domain.Signal, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return nil, ErrContactIDRequired
	}
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignal, t)
	}
	if source == "" {
		source = domain.SourceManual
	}

	sig := &domain.Signal{
		ID:        uuid.New().String(),
		ContactID: contactID,
		Type:      t,
		Source:    source,
		Note:      strings.TrimSpace(note),
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.AppendSignal(ctx, sig); err != nil {
		return nil, fmt.Errorf("append signal: %w", err)
	}
	s.log.Info("signal recorded", "contact_id", contactID, "signal", t, "source", source)
	return sig, nil
}

// History returns a contact's signals, newest first.
func (s *Service) History(ctx context.Context, contactID string, limit int) ([]domain.Signal, error) {
	if strings.TrimSpace(contactID) == "" {
		return nil, ErrContactIDRequired
	}
	return s.repo.ListSignals(ctx, contactID, limit)
}

// Suppress moves a contact into the suppressed lifecycle state, which the
// gate denies independently of any signal.
func (s *Service) Suppress(ctx context.Context, contactID string) error {
	return s.SetState(ctx, contactID, domain.ContactSuppressed)
}

// SetState transitions a contact's lifecycle state.
func (s *Service) SetState(ctx context.Context, contactID string, state domain.LifecycleState) error {
	if strings.TrimSpace(contactID) == "" {
		return ErrContactIDRequired
	}
	switch state {
	case domain.ContactNew, domain.ContactContacted, domain.ContactResponded, domain.ContactSuppressed:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	if err := s.repo.SetContactState(ctx, contactID, state); err != nil {
		return err
	}
	s.log.Info("contact state changed", "contact_id", contactID, "state", state)
	return nil
}

// InboundMessage is a reply received from a contact.
type InboundMessage struct {
	Channel domain.Channel `json:"channel"`
	From    string         `json:"from"`
	To      string         `json:"to"`
	Body    string         `json:"body"`
}

// InboundResult reports what RecordInbound did.
type InboundResult struct {
	ContactID string         `json:"contact_id,omitempty"`
	Matched   bool           `json:"matched"`
	Signal    *domain.Signal `json:"signal,omitempty"`
}

// RecordInbound classifies a reply and, when it implies a suppressing
// signal, appends it. Any other reply from a known contact marks the
// contact responded unless it is already suppressed.
func (s *Service) RecordInbound(ctx context.Context, msg InboundMessage) (*InboundResult, error) {
	contact, err := s.repo.FindContactByAddress(ctx, strings.TrimSpace(msg.From))
	if errors.Is(err, ErrNotFound) {
		s.log.Warn("inbound from unknown sender", "from_number", msg.From)
		return &InboundResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	res := &InboundResult{ContactID: contact.ID, Matched: true}
	if t, ok := ClassifyReply(msg.Body); ok {
		sig, err := s.AppendSignal(ctx, contact.ID, t, domain.SourceInboundReply, truncate(msg.Body, 280))
		if err != nil {
			return nil, err
		}
		res.Signal = sig
		return res, nil
	}

	if contact.State != domain.ContactSuppressed && contact.State != domain.ContactResponded {
		if err := s.repo.SetContactState(ctx, contact.ID, domain.ContactResponded); err != nil {
			return nil, fmt.Errorf("mark responded: %w", err)
		}
	}
	return res, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
