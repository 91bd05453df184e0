package escalation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
	"github.com/ignite/outreach-core/internal/templating"
)

// fakeStates is an in-memory StateRepository with the CAS contract.
type fakeStates struct {
	mu      sync.Mutex
	rows    map[string]*domain.EscalationState
	saveErr error
}

func newFakeStates() *fakeStates {
	return &fakeStates{rows: make(map[string]*domain.EscalationState)}
}

func stateKey(contactID, campaignID string) string { return contactID + "|" + campaignID }

func (f *fakeStates) GetState(_ context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.rows[stateKey(contactID, campaignID)]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (f *fakeStates) CreateState(_ context.Context, s *domain.EscalationState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := stateKey(s.ContactID, s.CampaignID)
	if _, ok := f.rows[k]; ok {
		return false, nil
	}
	f.rows[k] = s.Clone()
	return true, nil
}

func (f *fakeStates) SaveState(_ context.Context, s *domain.EscalationState, expectedStep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	k := stateKey(s.ContactID, s.CampaignID)
	cur, ok := f.rows[k]
	if !ok {
		return ErrNotFound
	}
	if cur.CurrentStep != expectedStep {
		return ErrStaleState
	}
	f.rows[k] = s.Clone()
	return nil
}

func (f *fakeStates) SaveProgress(_ context.Context, p Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cur, ok := f.rows[stateKey(p.ContactID, p.CampaignID)]
	if !ok {
		return ErrNotFound
	}
	if cur.CurrentStep != p.FromStep || cur.Completed {
		return ErrStaleState
	}
	p.Apply(cur)
	return nil
}

func (f *fakeStates) RecordAttempt(_ context.Context, contactID, campaignID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.rows[stateKey(contactID, campaignID)]
	if !ok {
		return ErrNotFound
	}
	cur.LastAttemptAt = &at
	return nil
}

func (f *fakeStates) ListDue(_ context.Context, q DueQuery) ([]*domain.EscalationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.EscalationState
	for _, st := range f.rows {
		if st.CampaignID != q.CampaignID || st.Paused || st.Completed || st.CurrentStep >= q.MaxSteps {
			continue
		}
		if st.LastSentAt != nil && st.LastSentAt.After(q.SentBefore) {
			continue
		}
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastAttemptAt, out[j].LastAttemptAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].ContactID < out[j].ContactID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStates) put(s *domain.EscalationState) { f.rows[stateKey(s.ContactID, s.CampaignID)] = s.Clone() }

// gateRepo backs a real gate.Service.
type gateRepo struct {
	mu       sync.Mutex
	contacts map[string]*domain.Contact
	signals  map[string]*domain.Signal
	fail     error
}

func newGateRepo() *gateRepo {
	return &gateRepo{contacts: make(map[string]*domain.Contact), signals: make(map[string]*domain.Signal)}
}

func (g *gateRepo) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail != nil {
		return nil, g.fail
	}
	c, ok := g.contacts[id]
	if !ok {
		return nil, gate.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (g *gateRepo) GetLatestSignal(_ context.Context, contactID string, _ []domain.SignalType) (*domain.Signal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.signals[contactID], nil
}

// fakeTransport records messages and fails on demand.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []domain.OutboundMessage
	failNext int
	err      error
	reject   bool
}

func (t *fakeTransport) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("send called without deadline")
	}
	if t.failNext > 0 {
		t.failNext--
		return nil, t.err
	}
	if t.reject {
		return &domain.DeliveryResult{Success: false, Error: "carrier rejected"}, nil
	}
	t.sent = append(t.sent, *msg)
	return &domain.DeliveryResult{Success: true, ProviderMessageID: "pm-" + msg.IdempotencyKey}, nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	seq       *Sequencer
	states    *fakeStates
	contacts  *gateRepo
	transport *fakeTransport
	clock     *testClock
	sleeps    []time.Duration
}

const testCampaign = "spring-roofing"

func testPersonas() []domain.Persona {
	return []domain.Persona{
		{ID: "opener", Name: "Gianna", Role: domain.RoleOpener, ChannelIdentity: "+15550000001",
			Templates: map[domain.TemplateKey]string{domain.TemplateFollowUp: "Hey {{first_name}}, {{sender_name}} again."}},
		{ID: "nudger", Name: "Cathy", Role: domain.RoleNudger, ChannelIdentity: "+15550000002",
			Templates: map[domain.TemplateKey]string{domain.TemplateFollowUp: "Knock knock {{first_name}}"}},
		{ID: "closer", Name: "Sabrina", Role: domain.RoleCloser, ChannelIdentity: "+15550000003", EmailIdentity: "sabrina@example.com",
			Templates: map[domain.TemplateKey]string{domain.TemplateBooking: "Book a time, {{first_name}}?"}},
	}
}

func stepsUpTo(n int) []domain.SequenceStep {
	steps := make([]domain.SequenceStep, 0, n)
	for i := 1; i <= n; i++ {
		steps = append(steps, domain.SequenceStep{Number: i, Body: "Step {{step}} for {{first_name}} from {{sender_name}}"})
	}
	return steps
}

func newHarness(t *testing.T, settings Settings, mutate ...func(*Campaign)) *harness {
	t.Helper()
	camp := Campaign{
		Sequence: domain.Sequence{CampaignID: testCampaign, Name: "Spring", Channel: domain.ChannelSMS, Steps: stepsUpTo(10)},
		Settings: settings,
	}
	for _, m := range mutate {
		m(&camp)
	}
	cat, err := NewCatalog(Settings{}, []Campaign{camp})
	require.NoError(t, err)

	reg, err := persona.NewRegistry(testPersonas())
	require.NoError(t, err)
	engine := templating.NewEngine()

	h := &harness{
		states:    newFakeStates(),
		contacts:  newGateRepo(),
		transport: &fakeTransport{},
		clock:     &testClock{t: time.Date(2026, 4, 7, 15, 0, 0, 0, time.UTC)}, // Tuesday
	}
	h.seq, err = NewSequencer(Deps{
		States:    h.states,
		Gate:      gate.NewService(h.contacts),
		Router:    persona.NewRouter(reg, engine),
		Renderer:  engine,
		Transport: h.transport,
		Catalog:   cat,
	}, WithClock(h.clock.now), WithIDGenerator(func() string { return "state-id" }))
	require.NoError(t, err)
	h.seq.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func (h *harness) addContact(id string) *domain.Contact {
	c := &domain.Contact{ID: id, Phone: "+15551230000", Email: id + "@example.com", FirstName: "Pat", State: domain.ContactNew}
	h.contacts.contacts[id] = c
	return c
}

func (h *harness) enroll(t *testing.T, contactID string) *domain.EscalationState {
	t.Helper()
	st := &domain.EscalationState{ID: contactID + "-state", ContactID: contactID, CampaignID: testCampaign}
	h.states.put(st)
	return st
}
