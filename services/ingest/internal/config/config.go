package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"cowly/pkg/domain"
)

// ConfigPath is the default config file, overridable with COWLY_INGEST_CONFIG.
const ConfigPath = "config.yaml"

// Feed binds one ThingSpeak channel to a cow.
type Feed struct {
	ChannelID string `yaml:"channelId"`
	APIKey    string `yaml:"apiKey"`
	UserID    string `yaml:"userId"`
	CowID     string `yaml:"cowId"`
}

// FileConfig represents configuration loaded from YAML, with environment
// overrides from the env tags.
type FileConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogsDir  string `yaml:"logsDir" env:"LOGS_DIR"`

	DatabaseURL   string `yaml:"databaseURL" env:"DATABASE_URL"`
	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	EventsChannel string `yaml:"eventsChannel" env:"EVENTS_CHANNEL"`
	ControlToken  string `yaml:"controlToken" env:"INGEST_CONTROL_TOKEN"`

	ThingSpeakURL   string `yaml:"thingspeakURL" env:"THINGSPEAK_BASE_URL"`
	PollInterval    string `yaml:"pollInterval" env:"POLL_INTERVAL"`
	PollConcurrency int    `yaml:"pollConcurrency" env:"POLL_CONCURRENCY"`
	RequestTimeout  string `yaml:"requestTimeout" env:"THINGSPEAK_TIMEOUT"`
	Feeds           []Feed `yaml:"feeds"`

	// A single feed can also come from the environment.
	EnvFeed struct {
		ChannelID string `env:"THINGSPEAK_CHANNEL_ID"`
		APIKey    string `env:"THINGSPEAK_API_KEY"`
		UserID    string `env:"USER_ID"`
		CowID     string `env:"COW_ID"`
	} `yaml:"-"`
}

// Load reads config from path. An empty path means COWLY_INGEST_CONFIG or
// config.yaml; a missing default file is tolerated.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:            "8090",
		LogLevel:        "info",
		PollInterval:    "60s",
		PollConcurrency: 4,
		RequestTimeout:  "15s",
	}
	explicit := path != ""
	if !explicit {
		path = os.Getenv("COWLY_INGEST_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if ef := cfg.EnvFeed; ef.ChannelID != "" {
		cfg.Feeds = append(cfg.Feeds, Feed{
			ChannelID: ef.ChannelID,
			APIKey:    ef.APIKey,
			UserID:    ef.UserID,
			CowID:     ef.CowID,
		})
	}
	for i := range cfg.Feeds {
		cfg.Feeds[i].CowID = domain.NormalizeCowID(cfg.Feeds[i].CowID)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if len(cfg.Feeds) == 0 {
		return errors.New("config: at least one feed is required")
	}
	for i, f := range cfg.Feeds {
		if strings.TrimSpace(f.ChannelID) == "" || strings.TrimSpace(f.UserID) == "" || strings.TrimSpace(f.CowID) == "" {
			return fmt.Errorf("config: feeds[%d] needs channelId, userId and cowId", i)
		}
		if f.CowID != domain.NormalizeCowID(f.CowID) || !domain.ValidCowID(f.CowID) {
			return fmt.Errorf("config: feeds[%d] has invalid cowId %q", i, f.CowID)
		}
	}
	if cfg.PollConcurrency < 1 {
		return errors.New("config: pollConcurrency must be >= 1")
	}
	interval, err := ParseDuration("pollInterval", cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if interval <= 0 {
		return errors.New("config: pollInterval must be positive")
	}
	if _, err := ParseDuration("requestTimeout", cfg.RequestTimeout); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseDuration parses an optional duration setting. Empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}
