package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
)

// sesAPI is the subset of the SES v2 client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSink emails alerts at or above a minimum level through AWS SES.
type SESSink struct {
	client   sesAPI
	from     string
	to       []string
	minLevel domain.AlertLevel
}

// NewSESSink builds an SES client from config. Static credentials are used
// when given, otherwise the default AWS credential chain.
func NewSESSink(ctx context.Context, cfg config.SESAlertConfig) (*SESSink, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES alerts: %w", err)
	}
	return newSESSink(sesv2.NewFromConfig(awsCfg), cfg), nil
}

func newSESSink(client sesAPI, cfg config.SESAlertConfig) *SESSink {
	return &SESSink{
		client:   client,
		from:     cfg.From,
		to:       cfg.To,
		minLevel: domain.AlertLevel(strings.ToLower(cfg.MinLevel)),
	}
}

// Send emails the alert if it is severe enough.
func (s *SESSink) Send(ctx context.Context, a domain.Alert) error {
	if !AtLeast(a.Level, s.minLevel) || len(s.to) == 0 {
		return nil
	}

	subject, body := formatAlert(a)
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: s.to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("alert_level"), Value: aws.String(string(a.Level))},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send alert: %w", err)
	}
	return nil
}

func formatAlert(a domain.Alert) (subject, body string) {
	subject = fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(a.Level)), a.Source, a.Message)

	var b strings.Builder
	fmt.Fprintf(&b, "Ad Insight Alert\n================\n\n")
	fmt.Fprintf(&b, "Level:     %s\n", a.Level)
	fmt.Fprintf(&b, "Source:    %s\n", a.Source)
	if a.BusinessID != "" {
		fmt.Fprintf(&b, "Business:  %s\n", a.BusinessID)
	}
	fmt.Fprintf(&b, "Time:      %s\n\n%s\n", a.CreatedAt.Format(time.RFC3339), a.Message)

	if len(a.Details) > 0 {
		keys := make([]string, 0, len(a.Details))
		for k := range a.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, a.Details[k])
		}
	}
	return subject, b.String()
}
