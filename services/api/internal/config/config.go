package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file, overridable with COWLY_API_CONFIG.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Environment
// variables named in the env tags take precedence over the file.
type FileConfig struct {
	Port     string `yaml:"port" env:"PORT"`
	LogLevel string `yaml:"logLevel" env:"LOG_LEVEL"`
	LogsDir  string `yaml:"logsDir" env:"LOGS_DIR"`

	StoreDriver   string `yaml:"storeDriver" env:"STORE_DRIVER"`
	DatabaseURL   string `yaml:"databaseURL" env:"DATABASE_URL"`
	RedisAddr     string `yaml:"redisAddr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword" env:"REDIS_PASSWORD"`
	EventsChannel string `yaml:"eventsChannel" env:"EVENTS_CHANNEL"`

	JWTSecret   string `yaml:"jwtSecret" env:"JWT_SECRET_KEY"`
	JWTIssuer   string `yaml:"jwtIssuer" env:"JWT_ISSUER"`
	JWTAudience string `yaml:"jwtAudience" env:"JWT_AUDIENCE"`
	JWTLeeway   string `yaml:"jwtLeeway" env:"JWT_LEEWAY"`
	SessionTTL  string `yaml:"sessionTTL" env:"SESSION_TTL"`

	AllowedOrigins          []string `yaml:"allowedOrigins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	TrustedProxies          []string `yaml:"trustedProxies" env:"TRUSTED_PROXIES" envSeparator:","`
	RegisterRateLimitPerMin int      `yaml:"registerRateLimitPerMinute" env:"REGISTER_RATE_LIMIT_PER_MINUTE"`
	LoginRateLimitPerMin    int      `yaml:"loginRateLimitPerMinute" env:"LOGIN_RATE_LIMIT_PER_MINUTE"`

	DiseaseModelURL string `yaml:"diseaseModelURL" env:"DISEASE_MODEL_URL"`
	MilkModelURL    string `yaml:"milkModelURL" env:"MILK_MODEL_URL"`
	ModelTimeout    string `yaml:"modelTimeout" env:"MODEL_TIMEOUT"`
	ArtifactsDir    string `yaml:"artifactsDir" env:"ARTIFACTS_DIR"`

	MinioEndpoint  string `yaml:"minioEndpoint" env:"MINIO_ENDPOINT"`
	MinioAccessKey string `yaml:"minioAccessKey" env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `yaml:"minioSecretKey" env:"MINIO_SECRET_KEY"`
	MinioBucket    string `yaml:"minioBucket" env:"MINIO_BUCKET"`
	MinioPrefix    string `yaml:"minioPrefix" env:"MINIO_PREFIX"`
	MinioUseSSL    bool   `yaml:"minioUseSSL" env:"MINIO_USE_SSL"`
}

// Load reads config from path. An empty path means COWLY_API_CONFIG or
// config.yaml; a missing default file is tolerated so the service can run
// from environment alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		Port:        "8080",
		LogLevel:    "info",
		StoreDriver: "postgres",
	}
	explicit := path != ""
	if !explicit {
		path = os.Getenv("COWLY_API_CONFIG")
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
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	switch strings.ToLower(cfg.StoreDriver) {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for the postgres store (set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET_KEY)")
	}
	if cfg.RegisterRateLimitPerMin < 0 || cfg.LoginRateLimitPerMin < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.DiseaseModelURL != "" && cfg.ArtifactsDir == "" && cfg.MinioEndpoint == "" {
		return errors.New("config: diseaseModelURL needs artifactsDir or minioEndpoint")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required with minioEndpoint")
	}
	for name, raw := range map[string]string{
		"sessionTTL":   cfg.SessionTTL,
		"jwtLeeway":    cfg.JWTLeeway,
		"modelTimeout": cfg.ModelTimeout,
	} {
		if _, err := ParseDuration(name, raw); err != nil {
			return fmt.Errorf("config: %w", err)
		}
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
