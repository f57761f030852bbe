// Package ses sends otpgate mail through Amazon SES (API v2).
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/otpgate"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

var loadDefaultAWSConfig = config.LoadDefaultConfig

// API is the subset of *sesv2.Client the sender uses.
type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Settings configures the SES client. AccessKeyID and SecretAccessKey are
// optional; when empty the default AWS credential chain is used.
// BaseEndpoint overrides the service URL (local emulators, tests).
type Settings struct {
	Region           string
	From             string
	ConfigurationSet string
	AccessKeyID      string
	SecretAccessKey  string
	BaseEndpoint     string
}

type Sender struct {
	api     API
	from    string
	confSet string
}

// New loads AWS configuration and returns a Sender backed by a real SES client.
func New(ctx context.Context, s Settings) (*Sender, error) {
	if s.From == "" {
		return nil, errors.New("ses from address is required")
	}

	opts := []func(*config.LoadOptions) error{}
	if s.Region != "" {
		opts = append(opts, config.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" || s.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.AccessKeyID,
			s.SecretAccessKey,
			"",
		)))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(cfg, func(o *sesv2.Options) {
		if s.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.BaseEndpoint)
		}
	})

	return NewWithAPI(client, s.From, s.ConfigurationSet), nil
}

// NewWithAPI wraps an existing SES client.
func NewWithAPI(api API, from, configurationSet string) *Sender {
	return &Sender{
		api:     api,
		from:    from,
		confSet: configurationSet,
	}
}

func (s *Sender) Send(ctx context.Context, m otpgate.Mail) error {
	body := &types.Body{}
	if m.Text != "" {
		body.Text = &types.Content{Data: aws.String(m.Text), Charset: aws.String("UTF-8")}
	}
	if m.HTML != "" {
		body.Html = &types.Content{Data: aws.String(m.HTML), Charset: aws.String("UTF-8")}
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{m.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(m.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.confSet != "" {
		in.ConfigurationSetName = aws.String(s.confSet)
	}

	if _, err := s.api.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("ses send email: %w", err)
	}
	return nil
}
