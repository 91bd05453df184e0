// Package memory provides in-process implementations of the gate,
// suppression and escalation repositories. It honors the same
// compare-and-swap contract as the Postgres adapter and backs tests and
// local runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/service/escalation"
)

// Store holds contacts, signals and escalation states behind one lock.
type Store struct {
	mu       sync.RWMutex
	contacts map[string]*domain.Contact
	signals  map[string][]domain.Signal // contact id -> append order
	states   map[stateKey]*domain.EscalationState
	now      func() time.Time
}

type stateKey struct{ contactID, campaignID string }

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		contacts: make(map[string]*domain.Contact),
		signals:  make(map[string][]domain.Signal),
		states:   make(map[stateKey]*domain.EscalationState),
		now:      time.Now,
	}
}

func cloneContact(c *domain.Contact) *domain.Contact {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.Attributes != nil {
		cp.Attributes = make(map[string]string, len(c.Attributes))
		for k, v := range c.Attributes {
			cp.Attributes[k] = v
		}
	}
	return &cp
}

// UpsertContact inserts or replaces a contact.
func (s *Store) UpsertContact(_ context.Context, c *domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.State == "" {
		c.State = domain.ContactNew
	}
	now := s.now().UTC()
	stored := cloneContact(c)
	if prev, ok := s.contacts[c.ID]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.contacts[c.ID] = stored
	return nil
}

func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, domain.ErrContactNotFound
	}
	return cloneContact(c), nil
}

func (s *Store) FindContactByAddress(_ context.Context, address string) (*domain.Contact, error) {
	want := domain.NormalizeAddress(address)
	if want == "" {
		return nil, domain.ErrContactNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.Contact
	for _, c := range s.contacts {
		var have string
		if strings.Contains(want, "@") {
			have = strings.ToLower(strings.TrimSpace(c.Email))
		} else {
			have = domain.NormalizePhone(c.Phone)
		}
		if have != want {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, domain.ErrContactNotFound
	}
	return cloneContact(best), nil
}

func (s *Store) SetContactState(_ context.Context, contactID string, state domain.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[contactID]
	if !ok {
		return domain.ErrContactNotFound
	}
	c.State = state
	c.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) AppendSignal(_ context.Context, sig *domain.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = s.now().UTC()
	}
	s.signals[sig.ContactID] = append(s.signals[sig.ContactID], *sig)
	return nil
}

// GetLatestSignal returns the newest matching signal. Ties on created_at
// go to the later append.
func (s *Store) GetLatestSignal(_ context.Context, contactID string, types []domain.SignalType) (*domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Signal
	for i := range s.signals[contactID] {
		sig := &s.signals[contactID][i]
		if !containsType(types, sig.Type) {
			continue
		}
		if latest == nil || !sig.CreatedAt.Before(latest.CreatedAt) {
			latest = sig
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func containsType(types []domain.SignalType, t domain.SignalType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (s *Store) ListSignals(_ context.Context, contactID string, limit int) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.signals[contactID]
	out := make([]domain.Signal, len(all))
	for i := range all {
		out[len(all)-1-i] = all[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetState(_ context.Context, contactID, campaignID string) (*domain.EscalationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[stateKey{contactID, campaignID}]
	if !ok {
		return nil, escalation.ErrNotFound
	}
	return st.Clone(), nil
}

func (s *Store) CreateState(_ context.Context, st *domain.EscalationState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stateKey{st.ContactID, st.CampaignID}
	if _, ok := s.states[k]; ok {
		return false, nil
	}
	s.states[k] = st.Clone()
	return true, nil
}

func (s *Store) SaveState(_ context.Context, st *domain.EscalationState, expectedStep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stateKey{st.ContactID, st.CampaignID}
	cur, ok := s.states[k]
	if !ok {
		return escalation.ErrNotFound
	}
	if cur.CurrentStep != expectedStep {
		return escalation.ErrStaleState
	}
	next := st.Clone()
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	s.states[k] = next
	return nil
}

// SaveProgress writes the step fields only; the pause flag and reason are
// left as stored.
func (s *Store) SaveProgress(_ context.Context, p escalation.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.states[stateKey{p.ContactID, p.CampaignID}]
	if !ok {
		return escalation.ErrNotFound
	}
	if cur.CurrentStep != p.FromStep || cur.Completed {
		return escalation.ErrStaleState
	}
	p.Apply(cur)
	return nil
}

func (s *Store) RecordAttempt(_ context.Context, contactID, campaignID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.states[stateKey{contactID, campaignID}]
	if !ok {
		return escalation.ErrNotFound
	}
	at = at.UTC()
	cur.LastAttemptAt = &at
	return nil
}

func (s *Store) ListDue(_ context.Context, q escalation.DueQuery) ([]*domain.EscalationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.EscalationState
	for k, st := range s.states {
		if k.campaignID != q.CampaignID || st.Paused || st.Completed || st.CurrentStep >= q.MaxSteps {
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
		return out[i].ID < out[j].ID
	})
	limit := q.Limit
	if limit <= 0 {
		limit = escalation.DefaultBatchSize
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
