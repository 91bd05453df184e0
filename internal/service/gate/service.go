package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

const defaultBatchConcurrency = 16

// Options relax individual checks. Zero value runs every check.
type Options struct {
	SkipSuppressionCheck bool
	SkipSignalCheck      bool
}

// BatchResult is one entry of EvaluateBatch, in input order. Err is set
// only when the repository could not be read for that contact.
type BatchResult struct {
	ContactID string              `json:"contact_id"`
	Decision  domain.GateDecision `json:"decision"`
	Err       error               `json:"-"`
}

// Service evaluates contactability. It is safe for concurrent use and
// performs no writes.
type Service struct {
	repo        Repository
	concurrency int
	log         *logger.Logger
}

// NewService creates a gate backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, concurrency: defaultBatchConcurrency, log: logger.New("gate")}
}

// WithConcurrency bounds the number of in-flight reads in EvaluateBatch.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// Evaluate decides whether contactID may be reached on channel. An empty
// channel means sms.
func (s *Service) Evaluate(ctx context.Context, contactID string, channel domain.Channel, opts Options) (domain.GateDecision, error) {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return domain.GateDecision{}, ErrContactIDRequired
	}
	if channel == "" {
		channel = domain.ChannelSMS
	}
	if !channel.Valid() {
		return domain.GateDecision{}, fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}

	decision := domain.GateDecision{ContactID: contactID, Channel: channel}

	contact, err := s.repo.GetContact(ctx, contactID)
	if errors.Is(err, ErrNotFound) {
		return s.deny(decision, domain.DenyNotFound), nil
	}
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("load contact %s: %w", contactID, err)
	}
	decision.Contact = contact
	decision.State = contact.State

	if !opts.SkipSuppressionCheck && contact.State == domain.ContactSuppressed {
		return s.deny(decision, domain.DenySuppressed), nil
	}

	if !opts.SkipSignalCheck {
		sig, err := s.repo.GetLatestSignal(ctx, contactID, domain.SuppressingSignals)
		if err != nil {
			return domain.GateDecision{}, fmt.Errorf("load signals for %s: %w", contactID, err)
		}
		if sig != nil {
			st, at := sig.Type, sig.CreatedAt
			decision.SignalType = &st
			decision.SignalAt = &at
			return s.deny(decision, domain.DenyReasonForSignal(sig.Type)), nil
		}
	}

	switch channel {
	case domain.ChannelSMS, domain.ChannelVoice:
		if !contact.HasPhone() {
			return s.deny(decision, domain.DenyNoPhone), nil
		}
	case domain.ChannelEmail:
		if !contact.HasEmail() {
			return s.deny(decision, domain.DenyNoEmail), nil
		}
	}

	decision.Allowed = true
	return decision, nil
}

func (s *Service) deny(d domain.GateDecision, reason domain.DenyReason) domain.GateDecision {
	d.Allowed = false
	d.Reason = reason
	s.log.Info("gate denied contact", "contact_id", d.ContactID, "channel", d.Channel, "reason", reason)
	return d
}

// EvaluateBatch evaluates every id independently and concurrently. A
// missing contact or a failed read for one id never affects the others; the
// whole batch is always evaluated.
func (s *Service) EvaluateBatch(ctx context.Context, contactIDs []string, channel domain.Channel) []BatchResult {
	results := make([]BatchResult, len(contactIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range contactIDs {
		g.Go(func() error {
			d, err := s.Evaluate(gctx, id, channel, Options{})
			results[i] = BatchResult{ContactID: id, Decision: d, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// AssertAllowed is Evaluate for paths that must abort rather than skip. A
// denial is returned as *BlockedError.
func (s *Service) AssertAllowed(ctx context.Context, contactID string, channel domain.Channel) (domain.GateDecision, error) {
	d, err := s.Evaluate(ctx, contactID, channel, Options{})
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &BlockedError{Decision: d}
	}
	return d, nil
}

// FilterAllowed returns the ids that passed, in input order. Ids whose
// evaluation failed are excluded and their errors joined into err.
func (s *Service) FilterAllowed(ctx context.Context, contactIDs []string, channel domain.Channel) ([]string, error) {
	var (
		allowed []string
		errs    []error
	)
	for _, r := range s.EvaluateBatch(ctx, contactIDs, channel) {
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		if r.Decision.Allowed {
			allowed = append(allowed, r.ContactID)
		}
	}
	return allowed, errors.Join(errs...)
}
