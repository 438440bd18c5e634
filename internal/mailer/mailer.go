// Package mailer delivers one-time credentials out of band. Delivery is
// best-effort: a send failure is logged and never fails the calling request.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Mailer sends account credentials to a freshly provisioned principal.
type Mailer interface {
	SendCredentials(ctx context.Context, email, password string) error
}

/* ================================ SES =================================== */

// SESMailer sends plain-text credential mails through AWS SES.
type SESMailer struct {
	client *ses.Client
	from   string
	log    *slog.Logger
}

func NewSESMailer(region, from string, log *slog.Logger) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESMailer{client: ses.NewFromConfig(cfg), from: from, log: log}, nil
}

func (m *SESMailer) SendCredentials(ctx context.Context, email, password string) error {
	body := fmt.Sprintf("Here are your credentials:\n\nEmail: %s\nPassword: %s\n", email, password)

	input := &ses.SendEmailInput{
		Source:      aws.String(m.from),
		Destination: &types.Destination{ToAddresses: []string{email}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String("Your Credentials")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		m.log.Error("credential mail failed", "email", email, "error", err)
		return fmt.Errorf("send credentials: %w", err)
	}
	return nil
}

/* ================================ Noop ================================== */

// Noop is used when no mail transport is configured.
type Noop struct{}

func (Noop) SendCredentials(context.Context, string, string) error { return nil }
