// Package mailer delivers emergency emails. Gmail API is preferred, SMTP is
// the fallback, and without either the message is reported undelivered.
//
// Senders never return errors: every outcome, including transport failures,
// is described by a Result so callers can answer with a structured response.
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

// Provider names reported in Result.
const (
	ProviderGmail = "gmail-api"
	ProviderSMTP  = "smtp-fallback"
	ProviderNone  = "none"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Result describes a delivery attempt.
type Result struct {
	Provider  string
	Delivered bool
	Details   string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

// GmailConfig holds Gmail API credentials.
type GmailConfig struct {
	AccessToken string
	SenderEmail string
	Endpoint    string
}

// Configured reports whether both token and sender are set.
func (c GmailConfig) Configured() bool {
	return c.AccessToken != "" && c.SenderEmail != ""
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	Secure    bool
}

// Configured reports whether every SMTP setting is present.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.Port > 0 && c.Username != "" && c.Password != "" && c.FromEmail != ""
}

// Config selects and configures the transport.
type Config struct {
	Gmail   GmailConfig
	SMTP    SMTPConfig
	Timeout time.Duration
}

// New returns the sender for the first configured provider.
func New(cfg Config) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	switch {
	case cfg.Gmail.Configured():
		return NewGmail(cfg.Gmail, timeout)
	case cfg.SMTP.Configured():
		return NewSMTP(cfg.SMTP, timeout)
	default:
		return None{}
	}
}

// None reports every message as undelivered.
type None struct{}

func (None) Send(context.Context, Message) Result {
	return Result{
		Provider: ProviderNone,
		Details:  "No email provider configured. Set Gmail API credentials or SMTP fallback environment values.",
	}
}

// compose renders msg as a plain-text message from sender. Addresses are
// parsed, so header injection through the recipient is rejected.
func compose(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	return m, nil
}
