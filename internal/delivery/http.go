package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/httpretry"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// HTTPConfig configures a JSON messaging provider.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
}

// HTTPTransport posts sms and voice messages to a provider API at
// {BaseURL}/messages (sms) or {BaseURL}/calls (voice).
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
	now     func() time.Time
	log     *logger.Logger
}

type providerRequest struct {
	Channel  domain.Channel    `json:"channel"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Body     string            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type providerResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// NewHTTPTransport creates a provider transport. A nil client gets a
// retrying client with the configured timeout.
func NewHTTPTransport(cfg HTTPConfig, client httpretry.HTTPDoer) *HTTPTransport {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = httpretry.NewRetryClient(&http.Client{Timeout: timeout}, cfg.MaxRetries)
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		now:     time.Now,
		log:     logger.New("sms-provider"),
	}
}

func (t *HTTPTransport) endpoint(ch domain.Channel) (string, error) {
	switch ch {
	case domain.ChannelSMS, "":
		return t.baseURL + "/messages", nil
	case domain.ChannelVoice:
		return t.baseURL + "/calls", nil
	}
	return "", fmt.Errorf("%w: %q", ErrNoTransport, ch)
}

// Send posts msg. Non-2xx responses return an unsuccessful result carrying
// the provider's message; network failures are errors.
func (t *HTTPTransport) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	url, err := t.endpoint(msg.Channel)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(providerRequest{
		Channel: msg.Channel,
		From:    msg.From,
		To:      msg.To,
		Body:    msg.Body,
		Metadata: map[string]string{
			"contact_id":  msg.ContactID,
			"campaign_id": msg.CampaignID,
			"step":        fmt.Sprintf("%d", msg.Step),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(payload)), nil }
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var pr providerResponse
	_ = json.Unmarshal(raw, &pr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := pr.Error
		if reason == "" {
			reason = pr.Message
		}
		if reason == "" {
			reason = fmt.Sprintf("provider returned %d", resp.StatusCode)
		}
		t.log.Warn("provider rejected message", "to", msg.To, "status", resp.StatusCode, "error", reason)
		return &domain.DeliveryResult{Success: false, Error: reason}, nil
	}

	t.log.Info("sent", "to", msg.To, "channel", string(msg.Channel), "message_id", pr.ID)
	return &domain.DeliveryResult{Success: true, ProviderMessageID: pr.ID, SentAt: t.now().UTC()}, nil
}
