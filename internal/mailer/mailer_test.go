package mailer

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net"
	"net/mail"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

var testMsg = Message{To: "receiver@example.com", Subject: "Open Me emergency support request", Text: "Please check in"}

func TestNew_SelectsProvider(t *testing.T) {
	smtpCfg := SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", FromEmail: "s@example.com"}
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"none", Config{}, ProviderNone},
		{"gmail", Config{Gmail: GmailConfig{AccessToken: "t", SenderEmail: "s@example.com"}, SMTP: smtpCfg}, ProviderGmail},
		{"partial gmail falls back", Config{Gmail: GmailConfig{AccessToken: "t"}, SMTP: smtpCfg}, ProviderSMTP},
		{"partial smtp", Config{SMTP: SMTPConfig{Host: "smtp.example.com", Port: 587}}, ProviderNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			switch New(tc.cfg).(type) {
			case *Gmail:
				got = ProviderGmail
			case *SMTP:
				got = ProviderSMTP
			case None:
				got = ProviderNone
			}
			if got != tc.want {
				t.Errorf("provider = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNone_Undelivered(t *testing.T) {
	res := None{}.Send(context.Background(), testMsg)
	if res.Delivered || res.Provider != ProviderNone || res.Details == "" {
		t.Fatalf("result = %+v", res)
	}
}

// parseMessage reads an RFC 5322 message and fails the test if it is malformed.
func parseMessage(t *testing.T, raw string) *mail.Message {
	t.Helper()
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("unparseable message %q: %v", raw, err)
	}
	return m
}

func assertHeaders(t *testing.T, m *mail.Message, from string) {
	t.Helper()
	for header, want := range map[string]string{"From": from, "To": testMsg.To} {
		addr, err := mail.ParseAddress(m.Header.Get(header))
		if err != nil || addr.Address != want {
			t.Errorf("%s = %q, want %s", header, m.Header.Get(header), want)
		}
	}
	if got := m.Header.Get("Subject"); got != testMsg.Subject {
		t.Errorf("Subject = %q", got)
	}
	if m.Header.Get("Date") == "" || m.Header.Get("Message-ID") == "" {
		t.Errorf("Date and Message-ID must be set: %v", m.Header)
	}
	body, _ := io.ReadAll(m.Body)
	if !strings.Contains(string(body), testMsg.Text) {
		t.Errorf("body = %q", body)
	}
}

func TestGmail_Delivered(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/gmail/v1/users/me/messages/send" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body struct {
			Raw string `json:"raw"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		decoded, err := base64.URLEncoding.DecodeString(body.Raw)
		if err != nil {
			t.Errorf("raw is not base64url: %v", err)
		}
		raw = string(decoded)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	g := NewGmail(GmailConfig{AccessToken: "token", SenderEmail: "sender@example.com", Endpoint: srv.URL + "/"}, time.Second)
	res := g.Send(context.Background(), testMsg)
	if !res.Delivered || res.Provider != ProviderGmail {
		t.Fatalf("result = %+v", res)
	}
	assertHeaders(t, parseMessage(t, raw), "sender@example.com")
}

func TestGmail_FailureIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewGmail(GmailConfig{AccessToken: "bad", SenderEmail: "s@example.com", Endpoint: srv.URL + "/"}, time.Second)
	res := g.Send(context.Background(), testMsg)
	if res.Delivered || res.Provider != ProviderGmail {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Details, "(401)") || !strings.Contains(res.Details, "invalid credentials") {
		t.Errorf("details = %q", res.Details)
	}
}

func TestGmail_InvalidRecipientNeverSent(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer srv.Close()

	g := NewGmail(GmailConfig{AccessToken: "token", SenderEmail: "s@example.com", Endpoint: srv.URL + "/"}, time.Second)
	res := g.Send(context.Background(), Message{To: "b@example.com\r\nBcc: x@example.com", Subject: "s", Text: "t"})
	if res.Delivered || hits != 0 {
		t.Fatalf("result = %+v, hits = %d", res, hits)
	}
}

func TestCompose_RejectsHeaderInjection(t *testing.T) {
	if _, err := compose("a@example.com", Message{To: "b@example.com\r\nBcc: x@example.com", Subject: "s", Text: "t"}); err == nil {
		t.Fatal("recipient with a header break should be rejected")
	}
}

// fakeSMTP accepts a single plaintext session with AUTH PLAIN and records the
// DATA payload.
func fakeSMTP(t *testing.T) (host string, port int, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		reply("220 fake.local ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250-fake.local")
				reply("250 AUTH PLAIN")
			case strings.HasPrefix(cmd, "AUTH"):
				reply("235 2.7.0 accepted")
			case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
				reply("250 OK")
			case cmd == "DATA":
				reply("354 go ahead")
				var sb strings.Builder
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if l == ".\r\n" {
						break
					}
					sb.WriteString(l)
				}
				out <- sb.String()
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 OK")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port, out
}

func TestSMTP_Delivered(t *testing.T) {
	host, port, data := fakeSMTP(t)
	s := NewSMTP(SMTPConfig{Host: host, Port: port, Username: "u", Password: "p", FromEmail: "sender@example.com"}, 2*time.Second)

	res := s.Send(context.Background(), testMsg)
	if !res.Delivered || res.Provider != ProviderSMTP {
		t.Fatalf("result = %+v", res)
	}
	select {
	case body := <-data:
		assertHeaders(t, parseMessage(t, body), "sender@example.com")
	case <-time.After(time.Second):
		t.Fatal("no DATA received")
	}
}

func TestSMTP_UnreachableIsReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewSMTP(SMTPConfig{Host: "127.0.0.1", Port: port, Username: "u", Password: "p", FromEmail: "s@example.com"}, time.Second)
	res := s.Send(context.Background(), testMsg)
	if res.Delivered || res.Provider != ProviderSMTP || !strings.HasPrefix(res.Details, "SMTP fallback send failed: ") {
		t.Fatalf("result = %+v", res)
	}
}
