package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/resend/resend-go/v2"
)

// EmailSender is the outbound mail contract the auth flows depend on. Sends
// are best-effort: a failed send never rolls back persisted state.
type EmailSender interface {
	SendVerificationEmail(email, tok, name string) error
	SendPasswordResetEmail(email, tok, name string) error
	SendPasswordChangedEmail(email, name string) error
	SendEmailVerifiedEmail(email, name string) error
}

type EmailService struct {
	client       *resend.Client
	fromEmail    string
	isDev        bool
	appURL       string
	appName      string
	supportEmail string
}

func NewEmailService(apiKey, fromEmail, appURL, appName, supportEmail string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:       client,
		fromEmail:    fromEmail,
		isDev:        isDev,
		appURL:       appURL,
		appName:      appName,
		supportEmail: supportEmail,
	}
}

func (s *EmailService) SendVerificationEmail(email, tok, name string) error {
	verifyURL := fmt.Sprintf("%s/verify?email=%s&token=%s",
		s.appURL, url.QueryEscape(email), url.QueryEscape(tok))
	subject, body := verificationEmailTemplate(name, verifyURL, s.appName)
	return s.send("verification", email, subject, body)
}

func (s *EmailService) SendPasswordResetEmail(email, tok, name string) error {
	resetURL := fmt.Sprintf("%s/new-password?email=%s&token=%s",
		s.appURL, url.QueryEscape(email), url.QueryEscape(tok))
	subject, body := passwordResetEmailTemplate(name, resetURL, s.appName)
	return s.send("password_reset", email, subject, body)
}

func (s *EmailService) SendPasswordChangedEmail(email, name string) error {
	subject, body := passwordChangedEmailTemplate(name, s.appName, s.supportEmail)
	return s.send("password_changed", email, subject, body)
}

func (s *EmailService) SendEmailVerifiedEmail(email, name string) error {
	subject, body := emailVerifiedTemplate(name, s.appName)
	return s.send("email_verified", email, subject, body)
}

func (s *EmailService) send(kind, to, subject, html string) error {
	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", to, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}

	_, err := s.client.Emails.SendWithContext(context.Background(), params)
	if err == nil {
		slog.Info("email sent", "type", kind, "to", to)
	}
	return err
}
