// Package config loads inboxpanel settings from flags, environment, an
// optional config.yaml and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/store"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/api/gmail/callback"

type Config struct {
	HTTP          HTTPConfig     `mapstructure:"http"`
	BaseURL       string         `mapstructure:"base_url"`
	Google        GoogleConfig   `mapstructure:"google"`
	Database      DatabaseConfig `mapstructure:"database"`
	Session       SessionConfig  `mapstructure:"session"`
	Sync          SyncConfig     `mapstructure:"sync"`
	Events        EventsConfig   `mapstructure:"events"`
	DashboardPath string         `mapstructure:"dashboard_path"`
	LoginPath     string         `mapstructure:"login_path"`
	Log           LogConfig      `mapstructure:"log"`
	Metrics       MetricsConfig  `mapstructure:"metrics"`
	Tracing       TracingConfig  `mapstructure:"tracing"`
	Audit         AuditConfig    `mapstructure:"audit"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type GoogleConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
	Cookie string `mapstructure:"cookie"`
}

type SyncConfig struct {
	MaxResults int64 `mapstructure:"max_results"`
	// Schedule is a cron expression. Empty disables background sync.
	Schedule string `mapstructure:"schedule"`
	// RateLimitInterval and RateLimitBurst throttle manual syncs per user.
	// A zero interval disables the limit.
	RateLimitInterval time.Duration `mapstructure:"rate_limit_interval"`
	RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
}

type EventsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls telemetry. Enabled=false switches off tracing too.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Exporter string `mapstructure:"exporter"`
}

type TracingConfig struct {
	Exporter     string  `mapstructure:"exporter"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type AuditConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	IncludePII bool `mapstructure:"include_pii"`
}

var defaults = map[string]any{
	"http.addr":                ":8080",
	"base_url":                 "",
	"google.client_id":         "",
	"google.client_secret":     "",
	"database.driver":          store.DriverSQLite,
	"database.url":             "file:inboxpanel.db",
	"session.secret":           "",
	"session.cookie":           "session",
	"sync.max_results":         20,
	"sync.schedule":            "",
	"sync.rate_limit_interval": "10s",
	"sync.rate_limit_burst":    3,
	"events.poll_interval":     "10s",
	"dashboard_path":           "/dashboard",
	"login_path":               "/auth/login",
	"log.level":                "info",
	"log.format":               logging.FormatText,
	"metrics.enabled":          true,
	"metrics.addr":             ":9090",
	"metrics.exporter":         instrumentation.ExporterPrometheus,
	"tracing.exporter":         instrumentation.ExporterNone,
	"tracing.endpoint":         "",
	"tracing.insecure":         false,
	"tracing.sampling_rate":    0.1,
	"audit.enabled":            true,
	"audit.include_pii":        false,
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"addr":            "http.addr",
	"base-url":        "base_url",
	"database-driver": "database.driver",
	"database-url":    "database.url",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"metrics-addr":    "metrics.addr",
	"sync-schedule":   "sync.schedule",
}

// ConfigFileFlag names the flag that points at an explicit config file.
const ConfigFileFlag = "config"

// Load resolves the configuration. flags may be nil. Environment variables
// are the upper-cased key with dots replaced by underscores, for example
// GOOGLE_CLIENT_ID or DATABASE_URL.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup(ConfigFileFlag); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.HTTP.Addr)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &cfg, nil
}

func defaultBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("session.secret is required (SESSION_SECRET)")
	}
	if _, err := store.NormalizeDriver(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required (DATABASE_URL)")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute URL", c.BaseURL)
	}
	if c.Sync.MaxResults <= 0 {
		return fmt.Errorf("sync.max_results must be positive, got %d", c.Sync.MaxResults)
	}
	if c.Sync.RateLimitInterval < 0 {
		return fmt.Errorf("sync.rate_limit_interval must not be negative, got %s", c.Sync.RateLimitInterval)
	}
	if c.Events.PollInterval <= 0 {
		return fmt.Errorf("events.poll_interval must be positive, got %s", c.Events.PollInterval)
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format)
	}
	if !c.Metrics.Enabled && c.Tracing.Exporter != "" && c.Tracing.Exporter != instrumentation.ExporterNone {
		return fmt.Errorf("tracing.exporter %q requires metrics.enabled", c.Tracing.Exporter)
	}
	inst := c.Instrumentation("")
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	return nil
}

// OAuthConfigured reports whether account linking is available.
func (c *Config) OAuthConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// CallbackURL is the OAuth redirect URI registered with Google.
func (c *Config) CallbackURL() string {
	return c.BaseURL + CallbackPath
}

// Instrumentation maps the metrics and tracing settings onto the
// instrumentation package. metrics.enabled gates the whole provider.
func (c *Config) Instrumentation(version string) instrumentation.Config {
	ic := instrumentation.DefaultConfig()
	if version != "" {
		ic.ServiceVersion = version
	}
	ic.Enabled = c.Metrics.Enabled
	ic.MetricsExporter = c.Metrics.Exporter
	ic.TracingExporter = c.Tracing.Exporter
	ic.OTLPEndpoint = c.Tracing.Endpoint
	ic.OTLPInsecure = c.Tracing.Insecure
	ic.TraceSamplingRate = c.Tracing.SamplingRate
	ic.AuditLogging = instrumentation.AuditLoggingConfig{
		Enabled:    c.Audit.Enabled,
		IncludePII: c.Audit.IncludePII,
	}
	return ic
}
