package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/repository/memory"
	"github.com/ignite/outreach-core/internal/service/escalation"
	"github.com/ignite/outreach-core/internal/service/gate"
	"github.com/ignite/outreach-core/internal/service/persona"
	"github.com/ignite/outreach-core/internal/service/suppression"
	"github.com/ignite/outreach-core/internal/templating"
)

type stubTransport struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	fail bool
}

func (t *stubTransport) Send(_ context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return &domain.DeliveryResult{Success: false, Error: "carrier rejected"}, nil
	}
	t.sent = append(t.sent, *msg)
	return &domain.DeliveryResult{Success: true, ProviderMessageID: "pm-1"}, nil
}

type testAPI struct {
	store     *memory.Store
	transport *stubTransport
	handler   http.Handler
}

func setupTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := memory.NewStore()
	transport := &stubTransport{}

	reg, err := persona.NewRegistry([]domain.Persona{
		{ID: "gianna", Name: "Gianna", Role: domain.RoleOpener, ChannelIdentity: "+15550000001"},
		{ID: "cathy", Name: "Cathy", Role: domain.RoleNudger, ChannelIdentity: "+15550000002"},
		{ID: "sabrina", Name: "Sabrina", Role: domain.RoleCloser, ChannelIdentity: "+15550000003", EmailIdentity: "sabrina@example.com"},
	})
	require.NoError(t, err)
	engine := templating.NewEngine()
	router := persona.NewRouter(reg, engine)

	cat, err := escalation.NewCatalog(escalation.Settings{MaxSteps: 2}, []escalation.Campaign{{
		Sequence: domain.Sequence{CampaignID: "spring", Name: "Spring", Channel: domain.ChannelSMS, Steps: []domain.SequenceStep{
			{Number: 1, Body: "Hi {{first_name}}"},
			{Number: 2, Body: "Still there, {{first_name}}?"},
		}},
	}})
	require.NoError(t, err)

	g := gate.NewService(store)
	seq, err := escalation.NewSequencer(escalation.Deps{
		States: store, Gate: g, Router: router, Renderer: engine, Transport: transport, Catalog: cat,
	}, escalation.WithClock(func() time.Time { return time.Date(2026, 4, 7, 15, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Gate:      g,
		Signals:   suppression.NewService(store),
		Contacts:  store,
		Router:    router,
		Sequencer: seq,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.UpsertContact(ctx, &domain.Contact{ID: "c1", Phone: "+15550100001", FirstName: "Pat"}))
	require.NoError(t, store.UpsertContact(ctx, &domain.Contact{ID: "c2", Phone: "+15550100002", FirstName: "Sam", Stage: "hot_lead"}))
	require.NoError(t, store.UpsertContact(ctx, &domain.Contact{ID: "c3", FirstName: "NoPhone"}))

	return &testAPI{store: store, transport: transport, handler: srv.Routes(nil)}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	a := setupTestAPI(t)
	w, body := a.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = a.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ready"])
}

func TestGateEvaluate(t *testing.T) {
	a := setupTestAPI(t)

	w, body := a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["allowed"])
	assert.Equal(t, "sms", body["channel"])

	w, body = a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c3", "channel": "voice"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["allowed"])
	assert.Equal(t, "no_phone", body["reason"])

	w, body = a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "ghost"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_found", body["reason"])

	w, _ = a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c1", "channel": "fax"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateEvaluate_EnforceReturnsForbiddenWithReason(t *testing.T) {
	a := setupTestAPI(t)
	w, _ := a.do(t, http.MethodPost, "/api/v1/contacts/c1/signals", map[string]any{"type": "opted_out", "note": "said stop on a call"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c1", "enforce": true})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "opted_out", body["code"])
	assert.Equal(t, "contact opted out", body["error"])

	// Signal checks can be skipped for compliance review tooling.
	w, body = a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c1", "skip_signal_check": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["allowed"])
}

func TestGateEvaluateBatch(t *testing.T) {
	a := setupTestAPI(t)
	w, body := a.do(t, http.MethodPost, "/api/v1/gate/evaluate-batch", map[string]any{
		"contact_ids": []string{"c1", "ghost", "c3", "c2"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, body["total"])
	assert.EqualValues(t, 2, body["allowed"])
	assert.EqualValues(t, 2, body["denied"])

	results := body["results"].([]any)
	order := make([]string, len(results))
	for i, r := range results {
		order[i] = r.(map[string]any)["contact_id"].(string)
	}
	assert.Equal(t, []string{"c1", "ghost", "c3", "c2"}, order)

	w, _ = a.do(t, http.MethodPost, "/api/v1/gate/evaluate-batch", map[string]any{"contact_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGateFilter(t *testing.T) {
	a := setupTestAPI(t)
	w, body := a.do(t, http.MethodPost, "/api/v1/gate/filter", map[string]any{"contact_ids": []string{"c3", "c2", "c1"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"c2", "c1"}, body["allowed"])
}

func TestContacts(t *testing.T) {
	a := setupTestAPI(t)

	w, body := a.do(t, http.MethodPut, "/api/v1/contacts/c9", map[string]any{"phone": "+15550100009", "first_name": "Lee", "tags": []string{"vip"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c9", body["id"])
	assert.Equal(t, "new", body["state"])

	w, body = a.do(t, http.MethodGet, "/api/v1/contacts/c9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lee", body["first_name"])

	w, _ = a.do(t, http.MethodGet, "/api/v1/contacts/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = a.do(t, http.MethodPut, "/api/v1/contacts/c9/state", map[string]any{"state": "suppressed"})
	require.Equal(t, http.StatusOK, w.Code)
	_, body = a.do(t, http.MethodPost, "/api/v1/gate/evaluate", map[string]any{"contact_id": "c9"})
	assert.Equal(t, "suppressed", body["reason"])

	w, _ = a.do(t, http.MethodPut, "/api/v1/contacts/c9/state", map[string]any{"state": "vanished"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignals(t *testing.T) {
	a := setupTestAPI(t)

	w, _ := a.do(t, http.MethodPost, "/api/v1/contacts/c1/signals", map[string]any{"type": "bounced"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPost, "/api/v1/contacts/ghost/signals", map[string]any{"type": "opted_out"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := a.do(t, http.MethodPost, "/api/v1/contacts/c1/signals", map[string]any{"type": "wrong_number"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "manual", body["source"])
	assert.NotEmpty(t, body["id"])

	w, body = a.do(t, http.MethodGet, "/api/v1/contacts/c1/signals?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, _ = a.do(t, http.MethodGet, "/api/v1/contacts/c1/signals?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInbound(t *testing.T) {
	a := setupTestAPI(t)

	w, body := a.do(t, http.MethodPost, "/api/v1/inbound", map[string]any{
		"channel": "sms", "from": "(555) 010-0001", "to": "+1 555 000 0002", "body": "STOP",
	})
	require.Equal(t, http.StatusOK, w.Code)
	result := body["result"].(map[string]any)
	assert.Equal(t, "c1", result["contact_id"])
	assert.Equal(t, "opted_out", result["signal"].(map[string]any)["type"])
	assert.Equal(t, "cathy", body["persona"].(map[string]any)["id"])

	_, body = a.do(t, http.MethodPost, "/api/v1/inbound", map[string]any{"from": "+15559999999", "to": "unknown", "body": "hi"})
	assert.Equal(t, false, body["result"].(map[string]any)["matched"])
	assert.Equal(t, "gianna", body["persona"].(map[string]any)["id"], "unknown identities fall back to the opener")

	w, _ = a.do(t, http.MethodPost, "/api/v1/inbound", map[string]any{"body": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouteAndPersonas(t *testing.T) {
	a := setupTestAPI(t)

	w, body := a.do(t, http.MethodGet, "/api/v1/contacts/c2/route", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entry := body["entry"].(map[string]any)
	assert.Equal(t, "sabrina", entry["worker_id"])
	assert.EqualValues(t, 1, entry["priority"])

	_, body = a.do(t, http.MethodGet, "/api/v1/personas", nil)
	personas := body["personas"].([]any)
	require.Len(t, personas, 3)
	assert.Equal(t, "opener", personas[0].(map[string]any)["role"])
	assert.NotContains(t, personas[0].(map[string]any), "templates")
}

func TestEscalationLifecycle(t *testing.T) {
	a := setupTestAPI(t)

	w, body := a.do(t, http.MethodGet, "/api/v1/campaigns", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["campaigns"], 1)

	w, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/enroll", map[string]any{"contact_ids": []string{"c1", "c3"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"c1"}, body["enrolled"])
	assert.Equal(t, "no_phone", body["denied"].(map[string]any)["c3"])

	w, body = a.do(t, http.MethodGet, "/api/v1/campaigns/spring/contacts/c1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not_started", body["status"])

	w, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/send", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["step"])

	// Inter-step delay has not elapsed.
	_, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/send", nil)
	assert.Equal(t, "not_time_yet", body["reason"])

	w, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/pause", map[string]any{"reason": "called in"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_paused"])
	assert.Equal(t, "called in", body["pause_reason"])

	_, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/resume", nil)
	assert.Equal(t, false, body["is_paused"])

	_, body = a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/reset", nil)
	assert.EqualValues(t, 0, body["current_step"])
	assert.Equal(t, "not_started", body["status"])

	w, _ = a.do(t, http.MethodGet, "/api/v1/campaigns/spring/contacts/c3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.do(t, http.MethodGet, "/api/v1/campaigns/winter/contacts/c1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendNext_TransportFailureIsBadGateway(t *testing.T) {
	a := setupTestAPI(t)
	a.do(t, http.MethodPost, "/api/v1/campaigns/spring/enroll", map[string]any{"contact_ids": []string{"c1"}})
	a.transport.fail = true

	w, body := a.do(t, http.MethodPost, "/api/v1/campaigns/spring/contacts/c1/send", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "transport_error", body["code"])

	st, err := a.store.GetState(context.Background(), "c1", "spring")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentStep, "a failed send never advances the step")
}
