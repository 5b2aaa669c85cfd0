// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Events    EventsConfig    `mapstructure:"events"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StoreConfig controls access to the article database.
type StoreConfig struct {
	Backend            string `mapstructure:"backend"`
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMin int    `mapstructure:"max_conn_lifetime_minutes"`
	RetryFailed        bool   `mapstructure:"retry_failed"`
}

// GovernorConfig tunes the browser quota governor.
type GovernorConfig struct {
	// Remote, when set, routes quota commands to another instance
	// instead of the embedded actor.
	Remote          string `mapstructure:"remote"`
	Backend         string `mapstructure:"backend"`
	DSN             string `mapstructure:"dsn"`
	ReserveSeconds  int    `mapstructure:"reserve_seconds"`
	MaxConcurrent   int    `mapstructure:"max_concurrent"`
	MaxDailySeconds int    `mapstructure:"max_daily_seconds"`
}

// HTTPConfig configures the lightweight fetch path.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// BrowserConfig configures the headless rendering path.
type BrowserConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
	SettleSeconds     int    `mapstructure:"settle_seconds"`
}

// QualityConfig holds the scoring thresholds.
type QualityConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	MinHeavyLength int     `mapstructure:"min_heavy_length"`
}

// RulesConfig locates the domain rule file.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig sets paths and content types for snapshot persistence.
type ArchiveConfig struct {
	Backend     string `mapstructure:"backend"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// EventsConfig holds metadata for completion event publishing.
type EventsConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SchedulerConfig drives the periodic extraction pass.
type SchedulerConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXTRACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime_minutes", 30)
	v.SetDefault("store.retry_failed", false)
	v.SetDefault("governor.backend", "memory")
	v.SetDefault("governor.reserve_seconds", 30)
	v.SetDefault("governor.max_concurrent", 3)
	v.SetDefault("governor.max_daily_seconds", 600)
	v.SetDefault("http.user_agent", "WorkNuggetsBot/1.0 (+https://worknuggets.com)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.nav_timeout_seconds", 60)
	v.SetDefault("browser.settle_seconds", 3)
	v.SetDefault("quality.threshold", 0.60)
	v.SetDefault("quality.min_heavy_length", 150)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "articles")
	v.SetDefault("archive.content_type", "text/html; charset=utf-8")
	v.SetDefault("events.backend", "none")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_seconds", 60)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Backend == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn must be set when store.backend is postgres")
	}
	if c.Governor.ReserveSeconds <= 0 {
		return fmt.Errorf("governor.reserve_seconds must be > 0")
	}
	if c.Governor.MaxConcurrent <= 0 {
		return fmt.Errorf("governor.max_concurrent must be > 0")
	}
	if c.Governor.MaxDailySeconds <= 0 {
		return fmt.Errorf("governor.max_daily_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Browser.Enabled && c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0 when browser is enabled")
	}
	if c.Quality.Threshold <= 0 || c.Quality.Threshold > 1 {
		return fmt.Errorf("quality.threshold must be in (0, 1]")
	}
	if c.Archive.Backend == "gcs" && c.Archive.GCSBucket == "" {
		return fmt.Errorf("archive.gcs_bucket must be set when archive.backend is gcs")
	}
	if c.Events.Backend == "pubsub" && (c.Events.ProjectID == "" || c.Events.TopicName == "") {
		return fmt.Errorf("events.project_id and events.topic_name must be set when events.backend is pubsub")
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be > 0 when scheduler is enabled")
	}
	return nil
}

// HTTPTimeout returns the lightweight fetch timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// SettleDelay returns the post-load settle delay as a duration.
func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.Browser.SettleSeconds) * time.Second
}

// SchedulerInterval returns the pass interval as a duration.
func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}
