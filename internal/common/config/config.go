// Package config provides configuration management for the autodelete service.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Retention RetentionConfig `mapstructure:"retention"`
	Store     StoreConfig     `mapstructure:"store"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// TwitterConfig holds platform credentials and client tuning.
type TwitterConfig struct {
	APIKey            string `mapstructure:"apiKey"`
	APISecret         string `mapstructure:"apiSecret"`
	AccessToken       string `mapstructure:"accessToken"`
	AccessTokenSecret string `mapstructure:"accessTokenSecret"`
	BearerToken       string `mapstructure:"bearerToken"`

	// APIBaseURL and APIv2BaseURL override the platform endpoints, used by tests.
	APIBaseURL   string `mapstructure:"apiBaseUrl"`
	APIv2BaseURL string `mapstructure:"apiV2BaseUrl"`

	// CallSpacing is the minimum delay between consecutive outbound calls, in seconds.
	CallSpacing int `mapstructure:"callSpacing"`

	// TimelineLimit is the maximum number of recent posts fetched per timeline scan.
	TimelineLimit int `mapstructure:"timelineLimit"`
}

// RetentionConfig holds the deletion policy thresholds.
type RetentionConfig struct {
	WindowHours      float64 `mapstructure:"windowHours"`      // age after which a post is deleted
	PopularCeiling   int     `mapstructure:"popularCeiling"`   // engagement exempting an aged post
	EarlyWarning     int     `mapstructure:"earlyWarning"`     // engagement triggering early deletion
	SweepIntervalMin int     `mapstructure:"sweepIntervalMin"` // periodic sweep cadence, in minutes
}

// StoreConfig holds schedule store configuration.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // file or sqlite
	Path   string `mapstructure:"path"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// CallSpacingDuration returns the outbound call spacing as a time.Duration.
func (t *TwitterConfig) CallSpacingDuration() time.Duration {
	return time.Duration(t.CallSpacing) * time.Second
}

// Window returns the retention window as a time.Duration.
func (r *RetentionConfig) Window() time.Duration {
	return time.Duration(r.WindowHours * float64(time.Hour))
}

// SweepInterval returns the sweep cadence as a time.Duration.
func (r *RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(r.SweepIntervalMin) * time.Minute
}

// detectDefaultLogFormat returns "json" in Kubernetes or other production
// environments and "text" for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AUTODELETE_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Twitter defaults - credentials have no defaults and must come from the environment
	v.SetDefault("twitter.apiBaseUrl", "https://api.twitter.com/1.1")
	v.SetDefault("twitter.apiV2BaseUrl", "https://api.twitter.com/2")
	v.SetDefault("twitter.callSpacing", 10)
	v.SetDefault("twitter.timelineLimit", 200)

	// Retention policy defaults
	v.SetDefault("retention.windowHours", 12.0)
	v.SetDefault("retention.popularCeiling", 10000)
	v.SetDefault("retention.earlyWarning", 1000)
	v.SetDefault("retention.sweepIntervalMin", 10)

	// Store defaults
	v.SetDefault("store.driver", "file")
	v.SetDefault("store.path", "tweet_store.json")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "autodelete")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AUTODELETE_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or /etc/autodelete/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AUTODELETE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The platform credentials are conventionally exported under their bare
	// names, so bind those alongside the prefixed forms.
	_ = v.BindEnv("twitter.apiKey", "API_KEY", "AUTODELETE_TWITTER_API_KEY")
	_ = v.BindEnv("twitter.apiSecret", "API_SECRET", "AUTODELETE_TWITTER_API_SECRET")
	_ = v.BindEnv("twitter.accessToken", "ACCESS_TOKEN", "AUTODELETE_TWITTER_ACCESS_TOKEN")
	_ = v.BindEnv("twitter.accessTokenSecret", "ACCESS_TOKEN_SECRET", "AUTODELETE_TWITTER_ACCESS_TOKEN_SECRET")
	_ = v.BindEnv("twitter.bearerToken", "BEARER_TOKEN", "AUTODELETE_TWITTER_BEARER_TOKEN")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/autodelete/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Retention.WindowHours <= 0 {
		errs = append(errs, "retention.windowHours must be positive")
	}
	if cfg.Retention.PopularCeiling < 0 {
		errs = append(errs, "retention.popularCeiling must not be negative")
	}
	if cfg.Retention.EarlyWarning < 0 {
		errs = append(errs, "retention.earlyWarning must not be negative")
	}
	if cfg.Retention.SweepIntervalMin <= 0 {
		errs = append(errs, "retention.sweepIntervalMin must be positive")
	}

	switch cfg.Store.Driver {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be file or sqlite, got %q", cfg.Store.Driver))
	}
	if cfg.Store.Path == "" {
		errs = append(errs, "store.path must be set")
	}

	if cfg.Twitter.TimelineLimit <= 0 {
		errs = append(errs, "twitter.timelineLimit must be positive")
	}
	if cfg.Twitter.CallSpacing < 0 {
		errs = append(errs, "twitter.callSpacing must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
