package mailer

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTP sends through an SMTP relay. Implicit TLS is used when Secure is set
// or the port is 465; otherwise STARTTLS is negotiated when offered.
type SMTP struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewSMTP creates an SMTP sender.
func NewSMTP(cfg SMTPConfig, timeout time.Duration) *SMTP {
	return &SMTP{cfg: cfg, timeout: timeout}
}

func (s *SMTP) Send(ctx context.Context, msg Message) Result {
	if err := s.send(ctx, msg); err != nil {
		return Result{Provider: ProviderSMTP, Details: "SMTP fallback send failed: " + err.Error()}
	}
	return Result{Provider: ProviderSMTP, Delivered: true, Details: "Delivered via SMTP fallback"}
}

func (s *SMTP) implicitTLS() bool {
	return s.cfg.Secure || s.cfg.Port == 465
}

func (s *SMTP) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSConfig(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if s.implicitTLS() {
		return append(opts, mail.WithSSL())
	}
	return append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
}

func (s *SMTP) send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	m, err := compose(s.cfg.FromEmail, msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(s.cfg.Host, s.options()...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, m)
}
