package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGmailEndpoint is the Gmail API base URL.
const DefaultGmailEndpoint = "https://gmail.googleapis.com/"

// gmailUser sends from the mailbox that owns the access token.
const gmailUser = "me"

// Gmail sends through the Gmail REST API with an OAuth access token.
type Gmail struct {
	cfg     GmailConfig
	timeout time.Duration
}

// NewGmail creates a Gmail sender.
func NewGmail(cfg GmailConfig, timeout time.Duration) *Gmail {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultGmailEndpoint
	}
	return &Gmail{cfg: cfg, timeout: timeout}
}

func (g *Gmail) Send(ctx context.Context, msg Message) Result {
	if err := g.send(ctx, msg); err != nil {
		return Result{Provider: ProviderGmail, Details: err.Error()}
	}
	return Result{Provider: ProviderGmail, Delivered: true, Details: "Delivered via Gmail API"}
}

func (g *Gmail) send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	m, err := compose(g.cfg.SenderEmail, msg)
	if err != nil {
		return fmt.Errorf("Gmail API send failed: %w", err)
	}
	var raw bytes.Buffer
	if _, err := m.WriteTo(&raw); err != nil {
		return fmt.Errorf("Gmail API send failed: %w", err)
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.cfg.AccessToken}))
	client.Timeout = g.timeout
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(g.cfg.Endpoint))
	if err != nil {
		return fmt.Errorf("Gmail API send failed: %w", err)
	}

	payload := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw.Bytes())}
	if _, err := svc.Users.Messages.Send(gmailUser, payload).Context(ctx).Do(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			details := apiErr.Message
			if details == "" {
				details = strings.TrimSpace(apiErr.Body)
			}
			return fmt.Errorf("Gmail API send failed (%d): %s", apiErr.Code, details)
		}
		return fmt.Errorf("Gmail API send failed: %w", err)
	}
	return nil
}
