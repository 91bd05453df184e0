package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client used for sending.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES transport.
type SESConfig struct {
	AccessKey        string
	SecretKey        string
	Region           string
	ConfigurationSet string
}

// SESTransport sends email through AWS SES.
type SESTransport struct {
	client    SESAPI
	configSet string
	now       func() time.Time
	log       *logger.Logger
}

// NewSESTransport wraps an existing SES client.
func NewSESTransport(client SESAPI, configSet string) *SESTransport {
	return &SESTransport{
		client:    client,
		configSet: configSet,
		now:       time.Now,
		log:       logger.New("ses"),
	}
}

// NewSESTransportFromConfig builds the SES client. Static credentials are
// used when both keys are set, otherwise the default AWS chain applies.
func NewSESTransportFromConfig(ctx context.Context, cfg SESConfig) (*SESTransport, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESTransport(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

// Send delivers msg. Provider rejections come back as an unsuccessful
// result; only a missing recipient or sender is an error.
func (s *SESTransport) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	if msg.To == "" || msg.From == "" {
		return nil, fmt.Errorf("ses: from and to are required")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(tagValue(msg.CampaignID))},
			{Name: aws.String("contact_id"), Value: aws.String(tagValue(msg.ContactID))},
			{Name: aws.String("step"), Value: aws.String(fmt.Sprintf("%d", msg.Step))},
		},
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.log.Warn("send failed", "email", msg.To, "campaign_id", msg.CampaignID, "error", err)
		return &domain.DeliveryResult{Success: false, Error: err.Error()}, nil
	}

	id := ""
	if out.MessageId != nil {
		id = *out.MessageId
	}
	s.log.Info("sent", "email", msg.To, "message_id", id)
	return &domain.DeliveryResult{Success: true, ProviderMessageID: id, SentAt: s.now().UTC()}, nil
}

// tagValue keeps SES message tags within the allowed character set
// (alphanumerics, '_' and '-').
func tagValue(v string) string {
	b := []byte(v)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "none"
	}
	return string(b)
}
