package delivery

import (
	"context"
	"time"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// DryRunSender logs messages instead of delivering them. It backs channels
// with no configured provider in local runs.
type DryRunSender struct {
	log *logger.Logger
	now func() time.Time
}

func NewDryRunSender() *DryRunSender {
	return &DryRunSender{log: logger.New("dry-run"), now: time.Now}
}

func (d *DryRunSender) Send(_ context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	d.log.Info("dry run send",
		"channel", string(msg.Channel), "to", msg.To, "from_number", msg.From,
		"campaign_id", msg.CampaignID, "step", msg.Step, "body_len", len(msg.Body))
	return &domain.DeliveryResult{
		Success:           true,
		ProviderMessageID: "dryrun-" + msg.IdempotencyKey,
		SentAt:            d.now().UTC(),
	}, nil
}
