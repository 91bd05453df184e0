package suppression

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
)

// mockRepo is an in-memory repository for testing.
type mockRepo struct {
	mu       sync.RWMutex
	signals  []domain.Signal
	contacts map[string]*domain.Contact
	failErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{contacts: make(map[string]*domain.Contact)}
}

func (m *mockRepo) AppendSignal(_ context.Context, s *domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.signals = append(m.signals, *s)
	return nil
}

func (m *mockRepo) ListSignals(_ context.Context, contactID string, limit int) ([]domain.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Signal
	for i := len(m.signals) - 1; i >= 0; i-- {
		if m.signals[i].ContactID == contactID {
			out = append(out, m.signals[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) FindContactByAddress(_ context.Context, address string) (*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.contacts {
		if c.Phone == address || strings.EqualFold(c.Email, address) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) SetContactState(_ context.Context, contactID string, state domain.LifecycleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	if !ok {
		return ErrNotFound
	}
	c.State = state
	return nil
}

func TestAppendSignal_RecordsSignal(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	sig, err := svc.AppendSignal(context.Background(), " c1 ", domain.SignalOptedOut, "", " asked by phone ")
	if err != nil {
		t.Fatalf("AppendSignal: %v", err)
	}
	if sig.ID == "" {
		t.Error("expected generated id")
	}
	if sig.ContactID != "c1" || sig.Source != domain.SourceManual || sig.Note != "asked by phone" {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if !sig.CreatedAt.Equal(fixed) {
		t.Errorf("created_at = %v, want %v", sig.CreatedAt, fixed)
	}
	if len(repo.signals) != 1 {
		t.Fatalf("expected 1 stored signal, got %d", len(repo.signals))
	}
}

func TestAppendSignal_AppendOnly(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.AppendSignal(ctx, "c1", domain.SignalDoNotContact, domain.SourceCarrier, ""); err != nil {
			t.Fatalf("AppendSignal #%d: %v", i, err)
		}
	}
	if len(repo.signals) != 3 {
		t.Errorf("expected 3 signals, got %d", len(repo.signals))
	}
	ids := map[string]bool{}
	for _, s := range repo.signals {
		ids[s.ID] = true
	}
	if len(ids) != 3 {
		t.Error("expected distinct signal ids")
	}
}

func TestAppendSignal_Validation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.AppendSignal(ctx, "", domain.SignalOptedOut, "", ""); !errors.Is(err, ErrContactIDRequired) {
		t.Errorf("expected ErrContactIDRequired, got %v", err)
	}
	if _, err := svc.AppendSignal(ctx, "c1", "interested", "", ""); !errors.Is(err, ErrInvalidSignal) {
		t.Errorf("expected ErrInvalidSignal, got %v", err)
	}
}

func TestAppendSignal_RepositoryError(t *testing.T) {
	repo := newMockRepo()
	repo.failErr = errors.New("insert failed")
	svc := NewService(repo)

	if _, err := svc.AppendSignal(context.Background(), "c1", domain.SignalOptedOut, "", ""); err == nil {
		t.Error("expected error from repository")
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	_, _ = svc.AppendSignal(ctx, "c1", domain.SignalWrongNumber, "", "")
	_, _ = svc.AppendSignal(ctx, "c2", domain.SignalOptedOut, "", "")
	_, _ = svc.AppendSignal(ctx, "c1", domain.SignalOptedOut, "", "")

	got, err := svc.History(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(got) != 2 || got[0].Type != domain.SignalOptedOut || got[1].Type != domain.SignalWrongNumber {
		t.Errorf("unexpected history: %+v", got)
	}

	got, _ = svc.History(ctx, "c1", 1)
	if len(got) != 1 {
		t.Errorf("expected limit to apply, got %d", len(got))
	}
}

func TestSetState(t *testing.T) {
	repo := newMockRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1", State: domain.ContactNew}
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Suppress(ctx, "c1"); err != nil {
		t.Fatalf("Suppress: %v", err)
	}
	if repo.contacts["c1"].State != domain.ContactSuppressed {
		t.Errorf("state = %s, want suppressed", repo.contacts["c1"].State)
	}
	if err := svc.SetState(ctx, "c1", "archived"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if err := svc.Suppress(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClassifyReply(t *testing.T) {
	cases := []struct {
		body string
		want domain.SignalType
	}{
		{"STOP", domain.SignalOptedOut},
		{"stop.", domain.SignalOptedOut},
		{"Stop texting me", domain.SignalOptedOut},
		{"UNSUBSCRIBE", domain.SignalOptedOut},
		{"please remove me from your list", domain.SignalOptedOut},
		{"opt-out", domain.SignalOptedOut},
		{"Cancel", domain.SignalOptedOut},
		{"This is spam", domain.SignalDoNotContact},
		{"Do not text this number again", domain.SignalDoNotContact},
		{"dont call me", domain.SignalDoNotContact},
		{"leave me alone", domain.SignalDoNotContact},
		{"Wrong number", domain.SignalWrongNumber},
		{"not me, sorry", domain.SignalWrongNumber},
		{"I don't know who this is", domain.SignalWrongNumber},
		{"stop, wrong number", domain.SignalOptedOut},
	}
	for _, tc := range cases {
		got, ok := ClassifyReply(tc.body)
		if !ok || got != tc.want {
			t.Errorf("ClassifyReply(%q) = %q, %v; want %q", tc.body, got, ok, tc.want)
		}
	}

	for _, body := range []string{"", "Yes, call me tomorrow", "I'm not interested right now", "cancel my 3pm?", "Who is this?", "the end of the week works"} {
		if got, ok := ClassifyReply(body); ok {
			t.Errorf("ClassifyReply(%q) = %q; want no signal", body, got)
		}
	}
}

func TestRecordInbound(t *testing.T) {
	repo := newMockRepo()
	repo.contacts["c1"] = &domain.Contact{ID: "c1", Phone: "+15551112222", State: domain.ContactContacted}
	repo.contacts["c2"] = &domain.Contact{ID: "c2", Phone: "+15553334444", State: domain.ContactContacted}
	svc := NewService(repo)
	ctx := context.Background()

	res, err := svc.RecordInbound(ctx, InboundMessage{Channel: domain.ChannelSMS, From: "+15551112222", Body: "STOP"})
	if err != nil {
		t.Fatalf("RecordInbound: %v", err)
	}
	if !res.Matched || res.Signal == nil || res.Signal.Type != domain.SignalOptedOut || res.Signal.Source != domain.SourceInboundReply {
		t.Errorf("unexpected result: %+v", res)
	}

	res, err = svc.RecordInbound(ctx, InboundMessage{From: "+15553334444", Body: "Sounds good, what times work?"})
	if err != nil {
		t.Fatalf("RecordInbound: %v", err)
	}
	if res.Signal != nil {
		t.Error("ordinary reply should not record a signal")
	}
	if repo.contacts["c2"].State != domain.ContactResponded {
		t.Errorf("state = %s, want responded", repo.contacts["c2"].State)
	}

	res, err = svc.RecordInbound(ctx, InboundMessage{From: "+19990000000", Body: "STOP"})
	if err != nil {
		t.Fatalf("RecordInbound unknown sender: %v", err)
	}
	if res.Matched {
		t.Error("unknown sender should not match")
	}
	if len(repo.signals) != 1 {
		t.Errorf("expected 1 signal, got %d", len(repo.signals))
	}
}
