package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aegis-sec/aegis/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

func codeSubject(purpose models.CodePurpose) string {
	switch purpose {
	case models.PurposePasswordReset:
		return "Your password reset code"
	case models.PurposeTwoFactorAuth:
		return "Your sign-in verification code"
	default:
		return "Your verification code"
	}
}

// AWSSESCodeSender delivers verification codes over email using AWS SES
type AWSSESCodeSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESCodeSender creates a new AWS SES code sender
func NewAWSSESCodeSender(region, fromAddress string, logger *slog.Logger) (*AWSSESCodeSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESCodeSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// Send delivers the code to the given email address
func (s *AWSSESCodeSender) Send(ctx context.Context, address, code string, purpose models.CodePurpose, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	textBody := fmt.Sprintf(`Your verification code is:

    %s

This code expires in %d minutes and can only be used once.

If you did not request this code, you can ignore this message. Someone may
have typed your email address by mistake.

This is an automated message. Please do not reply to this email.
`, code, minutes)

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f8f9fa; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>Your verification code is:</p>
        <div class="code">%s</div>
        <p>This code expires in %d minutes and can only be used once.</p>
        <p><strong>Didn't request this code?</strong><br>
        You can ignore this message. Someone may have typed your email address by mistake.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{address},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(codeSubject(purpose)),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send code email via SES",
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("code email sent",
		slog.String("purpose", string(purpose)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// AWSSNSCodeSender delivers verification codes over SMS using AWS SNS
type AWSSNSCodeSender struct {
	snsClient *sns.Client
	logger    *slog.Logger
}

// NewAWSSNSCodeSender creates a new AWS SNS code sender
func NewAWSSNSCodeSender(region string, logger *slog.Logger) (*AWSSNSCodeSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSNSCodeSender{
		snsClient: sns.NewFromConfig(cfg),
		logger:    logger,
	}, nil
}

// Send delivers the code to the given phone number (E.164)
func (s *AWSSNSCodeSender) Send(ctx context.Context, address, code string, purpose models.CodePurpose, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	message := fmt.Sprintf("%s is your verification code. It expires in %d minutes.", code, minutes)

	input := &sns.PublishInput{
		PhoneNumber: aws.String(address),
		Message:     aws.String(message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			// Transactional routing: codes must arrive, promotional rate
			// limits must not apply.
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}

	result, err := s.snsClient.Publish(ctx, input)
	if err != nil {
		s.logger.Error("failed to send code SMS via SNS",
			slog.String("purpose", string(purpose)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	s.logger.Info("code SMS sent",
		slog.String("purpose", string(purpose)),
		slog.String("message_id", aws.ToString(result.MessageId)))

	return nil
}
