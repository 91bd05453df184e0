package escalation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
)

// Gate is the subset of the contact gate the Sequencer needs.
type Gate interface {
	Evaluate(ctx context.Context, contactID string, channel domain.Channel, opts gate.Options) (domain.GateDecision, error)
	EvaluateBatch(ctx context.Context, contactIDs []string, channel domain.Channel) []gate.BatchResult
}

// Deps are the collaborators of a Sequencer.
type Deps struct {
	States    StateRepository
	Gate      Gate
	Router    *persona.Router
	Renderer  persona.Renderer
	Transport Transport
	Catalog   *Catalog
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the time source. Tests use a fixed clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithIDGenerator overrides how new state ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Sequencer) { s.newID = fn }
}

// Sequencer drives escalation states forward.
type Sequencer struct {
	states    StateRepository
	gate      Gate
	router    *persona.Router
	renderer  persona.Renderer
	transport Transport
	catalog   *Catalog

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
	log   *logger.Logger
}

// NewSequencer wires a Sequencer. Every dependency is required.
func NewSequencer(d Deps, opts ...Option) (*Sequencer, error) {
	if d.States == nil || d.Gate == nil || d.Router == nil || d.Renderer == nil || d.Transport == nil || d.Catalog == nil {
		return nil, errors.New("escalation: all sequencer dependencies are required")
	}
	s := &Sequencer{
		states:    d.States,
		gate:      d.Gate,
		router:    d.Router,
		renderer:  d.Renderer,
		transport: d.Transport,
		catalog:   d.Catalog,
		now:       time.Now,
		newID:     newStateID,
		sleep:     sleepCtx,
		log:       logger.New("escalation"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Catalog returns the campaigns this sequencer drives.
func (s *Sequencer) Catalog() *Catalog { return s.catalog }

// IsTimeToSend reports whether a contact of campaignID last sent at
// lastSentAt is past the inter-step delay.
func (s *Sequencer) IsTimeToSend(campaignID string, lastSentAt *time.Time) (bool, error) {
	camp, err := s.catalog.Get(campaignID)
	if err != nil {
		return false, err
	}
	return camp.Settings.IsTimeToSend(lastSentAt, s.now()), nil
}

// GetStatus derives the read-only progress view of st.
func (s *Sequencer) GetStatus(st *domain.EscalationState) (Status, error) {
	camp, err := s.catalog.Get(st.CampaignID)
	if err != nil {
		return Status{}, err
	}
	max := camp.Settings.MaxSteps
	pct := float64(st.CurrentStep) / float64(max) * 100
	if pct > 100 {
		pct = 100
	}
	status := st.Status(max)
	return Status{
		ContactID:       st.ContactID,
		CampaignID:      st.CampaignID,
		Status:          status,
		CurrentStep:     st.CurrentStep,
		MaxSteps:        max,
		ProgressPercent: pct,
		LastSentAt:      st.LastSentAt,
		NextSendTime:    camp.Settings.NextSendTime(st.LastSentAt),
		IsComplete:      status == domain.EscalationComplete,
		IsPaused:        st.Paused,
		PauseReason:     st.PauseReason,
	}, nil
}

// SendNextMessage attempts the next step for st. st is updated in place
// only when the send succeeded and the new state was persisted.
//
// The returned result is never nil. err is non-nil only for true errors
// (configuration defects, transport or persistence failures); "not now"
// outcomes carry a Reason and a nil error.
func (s *Sequencer) SendNextMessage(ctx context.Context, st *domain.EscalationState) (*SendResult, error) {
	camp, err := s.catalog.Get(st.CampaignID)
	if err != nil {
		res := notEligible(st, ReasonSystemError)
		res.Error = err.Error()
		return res, err
	}
	cfg := camp.Settings

	if st.Paused {
		return notEligible(st, ReasonLeadIsPaused), nil
	}
	if st.Completed || st.CurrentStep >= cfg.MaxSteps {
		res := notEligible(st, ReasonLoopComplete)
		res.IsLoopComplete = true
		return res, nil
	}

	now := s.now()
	if !cfg.IsTimeToSend(st.LastSentAt, now) {
		return notEligible(st, ReasonNotTimeYet), nil
	}
	if !camp.InWindow(now) {
		return notEligible(st, ReasonOutsideSendWindow), nil
	}

	nextStep := st.CurrentStep + 1

	decision, err := s.gate.Evaluate(ctx, st.ContactID, camp.Sequence.Channel, gate.Options{})
	if err != nil {
		res := notEligible(st, ReasonSystemError)
		res.Step = nextStep
		res.Error = err.Error()
		return res, fmt.Errorf("gate check for %s: %w", st.ContactID, err)
	}
	if !decision.Allowed {
		res := notEligible(st, ReasonContactDenied)
		res.Step = nextStep
		res.DenyReason = decision.Reason
		s.log.Info("escalation skipped: contact denied",
			"contact_id", st.ContactID, "campaign_id", st.CampaignID, "step", nextStep, "reason", decision.Reason)
		return res, nil
	}
	contact := decision.Contact

	sender, err := s.senderFor(camp, contact)
	if err != nil {
		res := notEligible(st, ReasonSystemError)
		res.Step = nextStep
		res.Error = err.Error()
		return res, err
	}

	subject, body, err := s.render(camp, nextStep, sender, contact)
	if err != nil {
		res := notEligible(st, ReasonTemplateMissing)
		res.Step = nextStep
		res.PersonaID = sender.ID
		res.Error = err.Error()
		s.log.Error("escalation template missing",
			"campaign_id", st.CampaignID, "step", nextStep, "persona", sender.ID, "error", err)
		return res, err
	}

	msg := &domain.OutboundMessage{
		Channel:        camp.Sequence.Channel,
		From:           sender.FromIdentity(camp.Sequence.Channel),
		To:             contact.AddressFor(camp.Sequence.Channel),
		Subject:        subject,
		Body:           body,
		ContactID:      st.ContactID,
		CampaignID:     st.CampaignID,
		Step:           nextStep,
		IdempotencyKey: IdempotencyKey(st.ContactID, st.CampaignID, nextStep),
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	delivery, err := s.transport.Send(sendCtx, msg)
	cancel()
	if err == nil && (delivery == nil || !delivery.Success) {
		detail := "provider reported failure"
		if delivery != nil && delivery.Error != "" {
			detail = delivery.Error
		}
		err = errors.New(detail)
	}
	if err != nil {
		res := notEligible(st, ReasonTransportError)
		res.Step = nextStep
		res.PersonaID = sender.ID
		res.Error = err.Error()
		s.log.Warn("escalation send failed",
			"contact_id", st.ContactID, "campaign_id", st.CampaignID, "step", nextStep, "error", err)
		return res, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	sentAt := now
	if !delivery.SentAt.IsZero() {
		sentAt = delivery.SentAt
	}
	progress := Progress{
		ContactID:  st.ContactID,
		CampaignID: st.CampaignID,
		FromStep:   st.CurrentStep,
		Step:       nextStep,
		LastSentAt: &sentAt,
		UpdatedAt:  now,
	}
	if err := s.states.SaveProgress(ctx, progress); err != nil {
		res := notEligible(st, ReasonSystemError)
		res.Step = nextStep
		res.PersonaID = sender.ID
		res.ProviderMessageID = delivery.ProviderMessageID
		res.Error = err.Error()
		s.log.Error("escalation state save failed after send",
			"contact_id", st.ContactID, "campaign_id", st.CampaignID, "step", nextStep, "error", err)
		return res, fmt.Errorf("save state: %w", err)
	}
	progress.Apply(st)

	s.log.Info("escalation step sent",
		"contact_id", st.ContactID, "campaign_id", st.CampaignID, "step", nextStep,
		"persona", sender.ID, "provider_message_id", delivery.ProviderMessageID)

	return &SendResult{
		ContactID:         st.ContactID,
		CampaignID:        st.CampaignID,
		Success:           true,
		IsLoopComplete:    nextStep >= cfg.PauseAfterStep,
		Step:              nextStep,
		PersonaID:         sender.ID,
		ProviderMessageID: delivery.ProviderMessageID,
		SentAt:            &sentAt,
	}, nil
}

// senderFor returns the campaign's fixed persona, or routes by the
// contact's stage and tags.
func (s *Sequencer) senderFor(camp *Campaign, c *domain.Contact) (*domain.Persona, error) {
	if id := camp.Sequence.PersonaID; id != "" {
		return s.router.Registry().Get(id)
	}
	return s.router.SelectForStage(c.Stage, c.Tags), nil
}

func (s *Sequencer) render(camp *Campaign, step int, sender *domain.Persona, c *domain.Contact) (subject, body string, err error) {
	def, ok := camp.Sequence.Step(step)
	if !ok {
		return "", "", fmt.Errorf("%w: campaign %s step %d", ErrTemplateMissing, camp.Sequence.CampaignID, step)
	}

	vars := c.Variables()
	vars["sender_name"] = sender.Name
	vars["step"] = strconv.Itoa(step)

	switch {
	case def.Body != "":
		key := camp.Sequence.CampaignID + "/" + strconv.Itoa(step)
		body, err = s.renderer.Render(key, def.Body, vars)
	case def.TemplateKey != "":
		body, err = s.router.RenderTemplate(sender, def.TemplateKey, vars)
		if errors.Is(err, persona.ErrTemplateNotFound) {
			err = fmt.Errorf("%w: %v", ErrTemplateMissing, err)
		}
	default:
		err = fmt.Errorf("%w: campaign %s step %d has no body", ErrTemplateMissing, camp.Sequence.CampaignID, step)
	}
	if err != nil {
		return "", "", err
	}

	if def.Subject != "" {
		key := camp.Sequence.CampaignID + "/" + strconv.Itoa(step) + "/subject"
		if subject, err = s.renderer.Render(key, def.Subject, vars); err != nil {
			return "", "", err
		}
	}
	return subject, body, nil
}

// IdempotencyKey identifies one step attempt for downstream de-duplication.
func IdempotencyKey(contactID, campaignID string, step int) string {
	return contactID + ":" + campaignID + ":" + strconv.Itoa(step)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
