// Package mailer sends transactional plain-text email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

// Mailer sends the welcome message to a newly enrolled learner.
type Mailer interface {
	SendWelcome(ctx context.Context, to, firstName string) error
}

// sendFunc is email.Email.Send; swapped in tests.
type sendFunc func(e *email.Email, addr string, auth smtp.Auth) error

type SMTPMailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg: cfg,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendWelcome honours ctx only before the SMTP dialogue starts; the
// library has no context support once connected.
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, firstName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := WelcomeEmail(m.cfg.From, to, firstName, m.cfg.LoginURL)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	done := make(chan error, 1)
	go func() { done <- m.send(e, addr, auth) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send welcome email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send welcome email: %w", ctx.Err())
	}
}

// WelcomeEmail builds the plain-text welcome message.
func WelcomeEmail(from, to, firstName, loginURL string) *email.Email {
	greeting := "Hi there,"
	if name := strings.TrimSpace(firstName); name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}
	var b strings.Builder
	b.WriteString(greeting + "\n\n")
	b.WriteString("Thank you for your purchase. Your course access is ready.\n\n")
	if loginURL != "" {
		b.WriteString("Sign in here: " + loginURL + "\n")
	}
	b.WriteString("Your login is this email address (" + to + ").\n")
	b.WriteString("Use the temporary password from your checkout page and change it after signing in.\n\n")
	b.WriteString("See you inside!\n")

	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = "Welcome! Your course access is ready"
	e.Text = []byte(b.String())
	return e
}

// LogMailer only logs; used when SMTP is not configured.
type LogMailer struct {
	log *zap.SugaredLogger
}

func (m LogMailer) SendWelcome(_ context.Context, to, _ string) error {
	m.log.Infow("welcome_email_skipped_no_smtp", "to", to)
	return nil
}

func New(cfg *config.Config, log *zap.SugaredLogger) Mailer {
	if cfg.SMTP.Host == "" {
		log.Infow("smtp not configured, welcome emails are logged only")
		return LogMailer{log: log}
	}
	return NewSMTPMailer(cfg.SMTP)
}
