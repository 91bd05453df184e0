// Package delivery contains the outbound transports used by the escalation
// sequencer.
//
// Transports are split by provider:
//   - mux.go:       channel multiplexer that satisfies escalation.Transport
//   - ses.go:       AWS SES v2 for email
//   - http.go:      JSON provider API for sms and voice
//   - dryrun.go:    logs instead of sending, for channels with no provider
//   - ratelimit.go: Redis-backed per-identity send limits
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/outreach-core/internal/domain"
)

// ErrNoTransport is returned when no transport is registered for a channel.
var ErrNoTransport = errors.New("delivery: no transport for channel")

// Sender delivers one message over one provider.
type Sender interface {
	Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error)
}

// Mux dispatches messages to the sender registered for their channel.
type Mux struct {
	senders map[domain.Channel]Sender
}

// NewMux creates an empty multiplexer.
func NewMux() *Mux {
	return &Mux{senders: make(map[domain.Channel]Sender)}
}

// Handle registers s for ch, replacing any previous sender.
func (m *Mux) Handle(ch domain.Channel, s Sender) *Mux {
	m.senders[ch] = s
	return m
}

// Channels returns the channels with a registered sender.
func (m *Mux) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(m.senders))
	for _, ch := range []domain.Channel{domain.ChannelSMS, domain.ChannelVoice, domain.ChannelEmail} {
		if _, ok := m.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

func (m *Mux) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	s, ok := m.senders[msg.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoTransport, msg.Channel)
	}
	return s.Send(ctx, msg)
}
