package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
)

func TestWelcomeEmail(t *testing.T) {
	e := WelcomeEmail("school@x.com", "jane@x.com", "Jane", "https://learn.example.com/login")
	require.Equal(t, "school@x.com", e.From)
	require.Equal(t, []string{"jane@x.com"}, e.To)
	require.Contains(t, string(e.Text), "Hi Jane,")
	require.Contains(t, string(e.Text), "https://learn.example.com/login")
	require.Empty(t, e.HTML)

	e = WelcomeEmail("school@x.com", "jane@x.com", " ", "")
	require.Contains(t, string(e.Text), "Hi there,")
}

func TestSMTPMailer_SendWelcome(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Host: "smtp.x.com", Port: 587, User: "u", Password: "p", From: "school@x.com"})
	var (
		gotAddr string
		gotAuth smtp.Auth
	)
	m.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		gotAddr, gotAuth = addr, auth
		return nil
	}
	require.NoError(t, m.SendWelcome(context.Background(), "jane@x.com", "Jane"))
	require.Equal(t, "smtp.x.com:587", gotAddr)
	require.NotNil(t, gotAuth)

	m.send = func(*email.Email, string, smtp.Auth) error { return errors.New("421 try later") }
	require.ErrorContains(t, m.SendWelcome(context.Background(), "jane@x.com", "Jane"), "421")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.SendWelcome(ctx, "jane@x.com", "Jane"), context.Canceled)
}

func TestNew_LogMailerWithoutHost(t *testing.T) {
	m := New(&config.Config{}, zap.NewNop().Sugar())
	require.IsType(t, LogMailer{}, m)
	require.NoError(t, m.SendWelcome(context.Background(), "a@b.co", ""))
}
