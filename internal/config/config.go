// Package config loads the substrate's YAML configuration: venue
// credentials and rate limits, ingestion pacing, store/checkpoint
// backends, metrics, alerting, and health thresholds. Every field has a
// documented default; a config file overrides field-wise, and secrets can
// be supplied via environment variables instead of the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration record.
type Config struct {
	Log        LogConfig             `yaml:"log"`
	Venues     map[string]VenueConfig `yaml:"venues"`
	Ingest     IngestConfig          `yaml:"ingest"`
	ClickHouse ClickHouseConfig      `yaml:"clickhouse"`
	Checkpoint CheckpointConfig      `yaml:"checkpoint"`
	Metrics    MetricsConfig         `yaml:"metrics"`
	Alerting   AlertingConfig        `yaml:"alerting"`
	Health     HealthConfig          `yaml:"health"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Pretty bool   `yaml:"pretty"` // console writer instead of JSON
}

// VenueConfig holds one exchange's credentials and REST pacing: the venue
// admits MaxRequests calls per rate-limit window.
type VenueConfig struct {
	APIKey      string `yaml:"api_key"`
	APISecret   string `yaml:"api_secret"`
	Passphrase  string `yaml:"passphrase"`
	MaxRequests int    `yaml:"max_requests"`
	WindowMS    int    `yaml:"window_ms"`
}

// GetWindow returns the venue's rate-limit window as a time.Duration.
func (c *VenueConfig) GetWindow() time.Duration {
	return time.Duration(c.WindowMS) * time.Millisecond
}

// IngestConfig paces the historical download pipeline.
type IngestConfig struct {
	Concurrency    int      `yaml:"concurrency"`
	BatchSize      int      `yaml:"batch_size"`
	RequestDelayMS int      `yaml:"request_delay_ms"`
	Symbols        []string `yaml:"symbols"`
	DataTypes      []string `yaml:"data_types"`
	Interval       string   `yaml:"interval"`
}

// GetRequestDelay returns the inter-page pause as a time.Duration.
func (c *IngestConfig) GetRequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

// ClickHouseConfig points at the columnar store.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CheckpointConfig selects the checkpoint backend.
type CheckpointConfig struct {
	Backend string `yaml:"backend"` // "local" | "clickhouse"
	Dir     string `yaml:"dir"`     // local backend only
}

// MetricsConfig controls the exposition endpoint and history retention.
type MetricsConfig struct {
	ListenAddr            string `yaml:"listen_addr"`
	HistoryRetentionHours int    `yaml:"history_retention_hours"`
}

// GetHistoryRetention returns the raw-history retention as a time.Duration.
func (c *MetricsConfig) GetHistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionHours) * time.Hour
}

// AlertingConfig tunes the alert engine and delivery channels.
type AlertingConfig struct {
	DedupeWindowSecs int           `yaml:"dedupe_window_secs"`
	MaxAlertHistory  int           `yaml:"max_alert_history"`
	Webhook          WebhookConfig  `yaml:"webhook"`
	Telegram         TelegramConfig `yaml:"telegram"`
	Email            EmailConfig    `yaml:"email"`
	GroupBot         GroupBotConfig `yaml:"group_bot"`
}

// GetDedupeWindow returns the alert dedup window as a time.Duration.
func (c *AlertingConfig) GetDedupeWindow() time.Duration {
	return time.Duration(c.DedupeWindowSecs) * time.Second
}

// WebhookConfig configures the JSON webhook channel.
type WebhookConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	MinLevel string `yaml:"min_level"`
}

// TelegramConfig configures the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Token    string `yaml:"token"`
	ChatID   int64  `yaml:"chat_id"`
	MinLevel string `yaml:"min_level"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"` // host:port
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	MinLevel string   `yaml:"min_level"`
}

// GroupBotConfig configures the HMAC-signed group bot channel.
type GroupBotConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Secret   string `yaml:"secret"`
	MinLevel string `yaml:"min_level"`
}

// HealthConfig tunes the health scheduler.
type HealthConfig struct {
	IntervalSecs  int    `yaml:"interval_secs"`
	MemWarnMB     uint64 `yaml:"mem_warn_mb"`
	MemCriticalMB uint64 `yaml:"mem_critical_mb"`
}

// GetInterval returns the health tick interval as a time.Duration.
func (c *HealthConfig) GetInterval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// Default returns the documented defaults for every field.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Pretty: false},
		Venues: map[string]VenueConfig{
			"binance": {MaxRequests: 20, WindowMS: 1000},
		},
		Ingest: IngestConfig{
			Concurrency:    3,
			BatchSize:      1000,
			RequestDelayMS: 200,
			DataTypes:      []string{"kline"},
			Interval:       "1m",
		},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "marketdata",
			Username: "default",
		},
		Checkpoint: CheckpointConfig{
			Backend: "local",
			Dir:     "./checkpoints",
		},
		Metrics: MetricsConfig{
			ListenAddr:            ":9100",
			HistoryRetentionHours: 24,
		},
		Alerting: AlertingConfig{
			DedupeWindowSecs: 300,
			MaxAlertHistory:  1000,
		},
		Health: HealthConfig{
			IntervalSecs:  30,
			MemWarnMB:     512,
			MemCriticalMB: 1024,
		},
	}
}

// Load reads path (if non-empty), overlays it on the defaults, applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv lets secrets live outside the config file:
// CRYPTORUN_<VENUE>_API_KEY / _API_SECRET / _PASSPHRASE per venue, plus
// CRYPTORUN_CLICKHOUSE_PASSWORD and CRYPTORUN_TELEGRAM_TOKEN.
func (c *Config) applyEnv() {
	for venue, vc := range c.Venues {
		prefix := "CRYPTORUN_" + strings.ToUpper(venue)
		if v := os.Getenv(prefix + "_API_KEY"); v != "" {
			vc.APIKey = v
		}
		if v := os.Getenv(prefix + "_API_SECRET"); v != "" {
			vc.APISecret = v
		}
		if v := os.Getenv(prefix + "_PASSPHRASE"); v != "" {
			vc.Passphrase = v
		}
		c.Venues[venue] = vc
	}

	if v := os.Getenv("CRYPTORUN_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("CRYPTORUN_TELEGRAM_TOKEN"); v != "" {
		c.Alerting.Telegram.Token = v
	}
}

// Validate rejects configurations that cannot be wired.
func (c *Config) Validate() error {
	switch c.Checkpoint.Backend {
	case "local", "clickhouse":
	default:
		return fmt.Errorf("checkpoint.backend must be \"local\" or \"clickhouse\", got %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.Backend == "local" && c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint.dir is required for the local backend")
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.BatchSize <= 0 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	for venue, vc := range c.Venues {
		if vc.MaxRequests <= 0 {
			return fmt.Errorf("venues.%s.max_requests must be positive, got %d", venue, vc.MaxRequests)
		}
		if vc.WindowMS <= 0 {
			return fmt.Errorf("venues.%s.window_ms must be positive, got %d", venue, vc.WindowMS)
		}
	}
	return nil
}
