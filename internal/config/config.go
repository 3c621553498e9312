package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults that apply when neither the config file nor the environment sets
// a value.
const (
	DefaultTimezone     = "Europe/Amsterdam"
	DefaultResolution   = "60"
	DefaultHTTPAddr     = ":8080"
	DefaultMonthlyQuota = 730
)

// Config is the full application configuration. Values are read from an
// optional YAML file, then overridden by ENEVER_-prefixed environment
// variables. A .env file in the working directory is honored.
type Config struct {
	// Enever holds the upstream API settings.
	Enever EneverConfig `yaml:"enever"`

	// Feeds selects which price feeds are polled.
	Feeds FeedsConfig `yaml:"feeds"`

	// Counter configures the monthly request counter.
	Counter CounterConfig `yaml:"counter"`

	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Alert   AlertConfig   `yaml:"alert"`
	Email   EmailConfig   `yaml:"email"`
}

type EneverConfig struct {
	// Token is the enever.nl API token. Required.
	Token string `yaml:"token"`

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `yaml:"base_url"`

	// Resolution is the electricity interval length in minutes: "60" or "15".
	Resolution string `yaml:"resolution"`

	// Timezone is the IANA zone the price schedules are interpreted in.
	Timezone string `yaml:"timezone"`
}

type FeedsConfig struct {
	Electricity bool `yaml:"electricity"`
	Gas         bool `yaml:"gas"`

	// Providers limits which provider codes are exposed as sensors. Empty
	// means all providers the feed publishes.
	Providers []string `yaml:"providers"`
}

type CounterConfig struct {
	Enabled      bool `yaml:"enabled"`
	MonthlyQuota int  `yaml:"monthly_quota"`
}

type StorageConfig struct {
	// Driver is "sqlite", "postgres" or "memory".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`

	// AuthEnabled requires a Bearer token on the price endpoints.
	AuthEnabled bool `yaml:"auth_enabled"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	WebhookType string `yaml:"webhook_type"`
	MinFailures int    `yaml:"min_failures"`
}

type EmailConfig struct {
	// SendGridKey enables operator email through SendGrid when set.
	SendGridKey string `yaml:"sendgrid_key"`
	From        string `yaml:"from"`
	To          string `yaml:"to"`
}

// Load reads the configuration. path may be empty, in which case only the
// environment is consulted.
func Load(path string) (Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Enever: EneverConfig{
			Resolution: DefaultResolution,
			Timezone:   DefaultTimezone,
		},
		Feeds: FeedsConfig{
			Electricity: true,
			Gas:         true,
		},
		Counter: CounterConfig{
			Enabled:      true,
			MonthlyQuota: DefaultMonthlyQuota,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "enever.db",
		},
		HTTP: HTTPConfig{
			Addr: DefaultHTTPAddr,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Alert: AlertConfig{
			MinFailures: 1,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Enever.Token, "ENEVER_TOKEN")
	setString(&cfg.Enever.BaseURL, "ENEVER_BASE_URL")
	setString(&cfg.Enever.Resolution, "ENEVER_RESOLUTION")
	setString(&cfg.Enever.Timezone, "ENEVER_TIMEZONE")

	setBool(&cfg.Feeds.Electricity, "ENEVER_FEED_ELECTRICITY")
	setBool(&cfg.Feeds.Gas, "ENEVER_FEED_GAS")
	if v := os.Getenv("ENEVER_PROVIDERS"); v != "" {
		cfg.Feeds.Providers = splitList(v)
	}

	setBool(&cfg.Counter.Enabled, "ENEVER_COUNTER_ENABLED")
	setInt(&cfg.Counter.MonthlyQuota, "ENEVER_MONTHLY_QUOTA")

	setString(&cfg.Storage.Driver, "ENEVER_STORAGE_DRIVER")
	setString(&cfg.Storage.DSN, "ENEVER_STORAGE_DSN")

	setString(&cfg.HTTP.Addr, "ENEVER_HTTP_ADDR")
	setBool(&cfg.HTTP.AuthEnabled, "ENEVER_AUTH_ENABLED")

	setString(&cfg.Log.Level, "ENEVER_LOG_LEVEL")
	setString(&cfg.Log.Format, "ENEVER_LOG_FORMAT")
	setString(&cfg.Log.File, "ENEVER_LOG_FILE")

	setString(&cfg.Alert.WebhookURL, "ENEVER_ALERT_WEBHOOK_URL")
	setString(&cfg.Alert.WebhookType, "ENEVER_ALERT_WEBHOOK_TYPE")
	setInt(&cfg.Alert.MinFailures, "ENEVER_ALERT_MIN_FAILURES")

	setString(&cfg.Email.SendGridKey, "ENEVER_SENDGRID_KEY")
	setString(&cfg.Email.From, "ENEVER_EMAIL_FROM")
	setString(&cfg.Email.To, "ENEVER_EMAIL_TO")
}

// Validate checks value ranges. It does not require a token so read-only
// commands can run without one; callers that fetch must check Token.
func (c Config) Validate() error {
	if c.Enever.Resolution != "60" && c.Enever.Resolution != "15" {
		return fmt.Errorf("invalid resolution %q: must be \"60\" or \"15\"", c.Enever.Resolution)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Counter.MonthlyQuota < 0 {
		return fmt.Errorf("monthly quota must not be negative")
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Enever.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Enever.Timezone, err)
	}
	return loc, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
