package internal

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/openme/internal/api"
	"github.com/starford/openme/internal/guard"
	"github.com/starford/openme/internal/mailer"
	"github.com/starford/openme/internal/maintenance"
	"github.com/starford/openme/internal/storage"
)

// DefaultConfigYAML is used when no config file exists.
//
//go:embed defaults.yaml
var DefaultConfigYAML []byte

// Store drivers.
const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
	StoreDriverPebble = "pebble"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig      `yaml:"app"`
	CORS        CORSConfig             `yaml:"cors"`
	CMS         CMSConfig              `yaml:"cms"`
	Emergency   EmergencyConfig        `yaml:"emergency"`
	Mail        MailConfig             `yaml:"mail"`
	Store       StoreConfig            `yaml:"store"`
	Limits      map[string]LimitConfig `yaml:"limits"`
	Metrics     MetricsConfig          `yaml:"metrics"`
	Maintenance MaintenanceConfig      `yaml:"maintenance"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Emergency.Validate(); err != nil {
		return err
	}
	if err := c.Mail.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Maintenance.Validate(); err != nil {
		return err
	}
	known := api.DefaultLimits()
	for scope, l := range c.Limits {
		if _, ok := known[scope]; !ok {
			return fmt.Errorf("limits: unknown scope %q", scope)
		}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("limits.%s: %w", scope, err)
		}
	}
	return nil
}

// RateLimits returns the configured per-scope limits.
func (c *Config) RateLimits() api.Limits {
	out := api.DefaultLimits()
	for scope, l := range c.Limits {
		out[scope] = guard.Limit{Max: l.Max, Window: l.Window}
	}
	return out
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
	)
}

// CORSConfig holds the browser origin allow-list.
type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

// Origins parses the allow-list, falling back to ALLOWED_ORIGINS when the
// configured value is empty.
func (c *CORSConfig) Origins() []string {
	raw := c.AllowedOrigins
	if raw == "" {
		raw = os.Getenv("ALLOWED_ORIGINS")
	}
	return guard.ParseOrigins(raw)
}

// CMSConfig holds the letter editor credentials. An empty token disables
// CMS writes.
type CMSConfig struct {
	AdminToken string `yaml:"admin_token"`
}

// EmergencyConfig holds emergency notification defaults.
type EmergencyConfig struct {
	RecipientEmail string `yaml:"recipient_email"`
}

// Validate validates the emergency configuration.
func (c *EmergencyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RecipientEmail, is.EmailFormat),
	)
}

// MailConfig holds email transport configuration.
type MailConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Gmail   GmailConfig   `yaml:"gmail"`
	SMTP    SMTPConfig    `yaml:"smtp"`
}

// Validate validates the mail configuration.
func (c *MailConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.SMTP),
	)
}

// Mailer converts the configuration for mailer.New.
func (c *MailConfig) Mailer() mailer.Config {
	return mailer.Config{
		Timeout: c.Timeout,
		Gmail: mailer.GmailConfig{
			AccessToken: c.Gmail.AccessToken,
			SenderEmail: c.Gmail.SenderEmail,
			Endpoint:    c.Gmail.Endpoint,
		},
		SMTP: mailer.SMTPConfig{
			Host:      c.SMTP.Host,
			Port:      c.SMTP.Port,
			Username:  c.SMTP.Username,
			Password:  c.SMTP.Password,
			FromEmail: c.SMTP.FromEmail,
			Secure:    c.SMTP.Secure,
		},
	}
}

// GmailConfig holds Gmail API credentials.
type GmailConfig struct {
	AccessToken string `yaml:"access_token"`
	SenderEmail string `yaml:"sender_email"`
	Endpoint    string `yaml:"endpoint"`
}

// SMTPConfig holds SMTP fallback settings.
type SMTPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FromEmail string `yaml:"from_email"`
	Secure    bool   `yaml:"secure"`
}

// Validate validates the SMTP configuration.
func (c SMTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.FromEmail, is.EmailFormat),
	)
}

// StoreConfig selects and configures the letter backend.
type StoreConfig struct {
	Driver     string        `yaml:"driver"`
	SQLite     SQLiteConfig  `yaml:"sqlite"`
	Pebble     PebbleConfig  `yaml:"pebble"`
	Collection string        `yaml:"collection"`
	SeedDir    string        `yaml:"seed_dir"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverMemory, StoreDriverSQLite, StoreDriverPebble)),
		validation.Field(&c.Collection, validation.By(func(any) error {
			if c.Collection != "" && !storage.ValidCollection(c.Collection) {
				return fmt.Errorf("must match [a-z_][a-z0-9_]*")
			}
			return nil
		})),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	switch c.Driver {
	case StoreDriverSQLite:
		return c.SQLite.Validate()
	case StoreDriverPebble:
		return c.Pebble.Validate()
	}
	return nil
}

// CollectionName returns the configured collection or the default.
func (c *StoreConfig) CollectionName() string {
	if c.Collection == "" {
		return storage.DefaultCollection
	}
	return c.Collection
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PebbleConfig holds Pebble store configuration.
type PebbleConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the Pebble configuration.
func (c *PebbleConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaintenanceConfig schedules housekeeping such as rate-limit bucket sweeps.
type MaintenanceConfig struct {
	Schedule string `yaml:"schedule"`
}

// Validate validates the maintenance configuration.
func (c *MaintenanceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Schedule, validation.By(func(any) error {
			if c.Schedule != "" && !maintenance.ValidSchedule(c.Schedule) {
				return fmt.Errorf("must be a valid cron expression")
			}
			return nil
		})),
	)
}

// LimitConfig is a fixed-window quota.
type LimitConfig struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Validate validates the quota.
func (c LimitConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Max, validation.Required, validation.Min(1)),
		validation.Field(&c.Window, validation.Required, validation.Min(time.Millisecond)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:         8080,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 15 * time.Second,
			},
		},
		Mail: MailConfig{
			Timeout: mailer.DefaultTimeout,
			Gmail:   GmailConfig{Endpoint: mailer.DefaultGmailEndpoint},
		},
		Store: StoreConfig{
			Driver:  StoreDriverMemory,
			SQLite:  SQLiteConfig{Path: "./openme.db"},
			Pebble:  PebbleConfig{Dir: "./openme-pebble"},
			Timeout: 5 * time.Second,
		},
		Metrics:     MetricsConfig{Enabled: true},
		Maintenance: MaintenanceConfig{Schedule: maintenance.DefaultSchedule},
	}
}
