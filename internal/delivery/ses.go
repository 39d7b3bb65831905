// Package delivery sends the welcome email with the subscriber's
// certificate attached, via AWS SES.
package delivery

import (
	"context"
	"fmt"
	"log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// sesAPI is the slice of the SES client the sender uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Attachment describes the artifact blob attached to the welcome email
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SESSender delivers welcome emails via AWS SES using the SDK v2.
type SESSender struct {
	client    sesAPI
	fromName  string
	fromEmail string
}

// NewSESSender creates an SES sender. Initializes the AWS SDK client if
// credentials are provided; otherwise falls back to the default chain.
func NewSESSender(accessKey, secretKey, region, fromName, fromEmail string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing AWS config: %w", err)
	}

	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromName:  fromName,
		fromEmail: fromEmail,
	}, nil
}

// Deliver sends the welcome email with the certificate attached. A non-nil
// error leaves the subscriber retryable at its current status.
func (s *SESSender) Deliver(ctx context.Context, toEmail string, attachment Attachment) error {
	if s.client == nil {
		return fmt.Errorf("SES client not initialized - check credentials")
	}

	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	subject := "Welcome to Our Subscription Service!"
	body := fmt.Sprintf("Thank you for subscribing to our service, %s!\r\n\r\nYour welcome certificate is attached.\r\n", toEmail)

	raw, err := buildRawMessage(from, toEmail, subject, body, attachment.Data, attachment.Filename, attachment.ContentType)
	if err != nil {
		return fmt.Errorf("building message: %w", err)
	}

	result, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("sending via SES: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	log.Printf("[Delivery] Sent welcome email to %s (id: %s)", toEmail, messageID)
	return nil
}
