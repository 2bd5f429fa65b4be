package internal

import (
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/openme/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Store.CollectionName() != "open_me_letters" {
		t.Errorf("collection = %q", cfg.Store.CollectionName())
	}
}

func TestEmbeddedDefaults_ExpandEnv(t *testing.T) {
	t.Setenv("OPEN_ME_ALLOWED_ORIGINS", "https://openme.example, https://admin.openme.example/")
	t.Setenv("CMS_ADMIN_TOKEN", "secret")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_SECURE", "")
	t.Setenv("OPEN_ME_LETTERS_COLLECTION", "")

	cfg := NewDefaultConfig()
	if err := pkgconfig.Parse("defaults", DefaultConfigYAML, cfg); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := cfg.CORS.Origins(); len(got) != 2 || got[1] != "https://admin.openme.example/" {
		t.Errorf("origins = %v", got)
	}
	if cfg.CMS.AdminToken != "secret" {
		t.Errorf("admin token = %q", cfg.CMS.AdminToken)
	}
	m := cfg.Mail.Mailer()
	if m.SMTP.Port != 465 || m.SMTP.Secure || m.Gmail.Endpoint == "" || m.Timeout != 10*time.Second {
		t.Errorf("mailer config = %+v", m)
	}
	if cfg.Store.Driver != StoreDriverMemory || cfg.Store.CollectionName() != "open_me_letters" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestCORSConfig_FallbackEnv(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://fallback.example")
	cfg := CORSConfig{}
	if got := cfg.Origins(); len(got) != 1 || got[0] != "https://fallback.example" {
		t.Errorf("origins = %v", got)
	}

	cfg.AllowedOrigins = "https://primary.example"
	if got := cfg.Origins(); len(got) != 1 || got[0] != "https://primary.example" {
		t.Errorf("origins = %v", got)
	}
}

func TestStoreConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantErr string
	}{
		{"memory", StoreConfig{Driver: StoreDriverMemory}, ""},
		{"sqlite", StoreConfig{Driver: StoreDriverSQLite, SQLite: SQLiteConfig{Path: "x.db"}}, ""},
		{"sqlite without path", StoreConfig{Driver: StoreDriverSQLite}, "path"},
		{"pebble", StoreConfig{Driver: StoreDriverPebble, Pebble: PebbleConfig{Dir: "data"}}, ""},
		{"pebble without dir", StoreConfig{Driver: StoreDriverPebble}, "dir"},
		{"unknown driver", StoreConfig{Driver: "firestore"}, "driver"},
		{"bad collection", StoreConfig{Driver: StoreDriverMemory, Collection: "Letters; drop"}, "collection"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(strings.ToLower(err.Error()), tc.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLimits(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Limits = map[string]LimitConfig{"emergency-notify": {Max: 5, Window: 30 * time.Second}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	limits := cfg.RateLimits()
	if l := limits.For("emergency-notify"); l.Max != 5 || l.Window != 30*time.Second {
		t.Errorf("emergency limit = %+v", l)
	}
	if l := limits.For("letter-update"); l.Max != 10 || l.Window != time.Minute {
		t.Errorf("letter-update limit = %+v", l)
	}

	cfg.Limits = map[string]LimitConfig{"letter-delete": {Max: 1, Window: time.Second}}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown scope should fail validation")
	}

	cfg.Limits = map[string]LimitConfig{"letter-open": {Max: 0, Window: time.Second}}
	if err := cfg.Validate(); err == nil {
		t.Error("zero max should fail validation")
	}
}

func TestHTTPConfig_InvalidPort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid port should fail validation")
	}
}

func TestEmergencyConfig_InvalidEmail(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Emergency.RecipientEmail = "not-an-email"
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid recipient should fail validation")
	}
}

func TestMaintenanceConfig_Validation(t *testing.T) {
	if err := (&MaintenanceConfig{}).Validate(); err != nil {
		t.Errorf("empty schedule should use the default: %v", err)
	}
	if err := (&MaintenanceConfig{Schedule: "*/5 * * * *"}).Validate(); err != nil {
		t.Errorf("valid schedule rejected: %v", err)
	}
	err := (&MaintenanceConfig{Schedule: "sometimes"}).Validate()
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "schedule") {
		t.Errorf("invalid schedule: err = %v", err)
	}
}
