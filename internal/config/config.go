// Package config loads certmailer configuration from a YAML file with
// environment variable overrides.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Gmail        GmailConfig        `yaml:"gmail"`
	Certificates CertificatesConfig `yaml:"certificates"`
	Redis        RedisConfig        `yaml:"redis"`
	SendLog      SendLogConfig      `yaml:"send_log"`
	Pacing       PacingConfig       `yaml:"pacing"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, binding all interfaces on ECS.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// GmailConfig holds Gmail API dispatch settings. The bearer token itself
// arrives with each batch request, never from config.
type GmailConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// RetryTransient enables bounded retry with backoff on 429/5xx.
	// Off by default: the base contract is one attempt per message.
	RetryTransient bool `yaml:"retry_transient"`
	MaxRetries     int  `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration.
func (c GmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CertificatesConfig holds certificate image storage settings.
type CertificatesConfig struct {
	// Source is "local" or "s3".
	Source     string `yaml:"source"`
	DefaultDir string `yaml:"default_dir"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	AWSProfile string `yaml:"aws_profile"`
}

// GetAWSProfile returns the AWS profile, empty for the default
// credential chain (IAM role on ECS).
func (c CertificatesConfig) GetAWSProfile() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the session registry connection settings.
type RedisConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Addr              string `yaml:"addr"`
	Password          string `yaml:"password"`
	DB                int    `yaml:"db"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
}

// SessionTTL returns the session TTL as a duration.
func (c RedisConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// SendLogConfig holds the optional Postgres send-history settings.
type SendLogConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// PacingProfile is one set of lane/jitter parameters.
type PacingProfile struct {
	Lanes           int     `yaml:"lanes"`
	MinDelaySeconds float64 `yaml:"min_delay_seconds"`
	MaxDelaySeconds float64 `yaml:"max_delay_seconds"`
}

// PacingConfig carries the two jitter profiles applied when a batch
// request leaves its pacing parameters unset: small delays for direct
// sends, larger ones for bulk batches at or above the threshold.
type PacingConfig struct {
	Direct        PacingProfile `yaml:"direct"`
	Bulk          PacingProfile `yaml:"bulk"`
	BulkThreshold int           `yaml:"bulk_threshold"`
}

// ProfileFor picks the pacing profile for a batch of the given size.
func (c PacingConfig) ProfileFor(recipientCount int) PacingProfile {
	if recipientCount >= c.BulkThreshold {
		return c.Bulk
	}
	return c.Direct
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Gmail.TimeoutSeconds == 0 {
		cfg.Gmail.TimeoutSeconds = 30
	}
	if cfg.Gmail.MaxRetries == 0 {
		cfg.Gmail.MaxRetries = 3
	}
	if cfg.Certificates.Source == "" {
		cfg.Certificates.Source = "local"
	}
	if cfg.Certificates.DefaultDir == "" {
		cfg.Certificates.DefaultDir = "certificates"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.SessionTTLMinutes == 0 {
		cfg.Redis.SessionTTLMinutes = 30
	}
	if cfg.Pacing.Direct.Lanes == 0 {
		cfg.Pacing.Direct = PacingProfile{Lanes: 2, MinDelaySeconds: 1, MaxDelaySeconds: 3}
	}
	if cfg.Pacing.Bulk.Lanes == 0 {
		cfg.Pacing.Bulk = PacingProfile{Lanes: 3, MinDelaySeconds: 4, MaxDelaySeconds: 9}
	}
	if cfg.Pacing.BulkThreshold == 0 {
		cfg.Pacing.BulkThreshold = 10
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is read first so secrets can live there
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GMAIL_BASE_URL"); v != "" {
		cfg.Gmail.BaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.SendLog.DatabaseURL = v
		cfg.SendLog.Enabled = true
	}
	if v := os.Getenv("CERT_S3_BUCKET"); v != "" {
		cfg.Certificates.S3Bucket = v
		cfg.Certificates.Source = "s3"
	}
	if v := os.Getenv("CERT_S3_REGION"); v != "" {
		cfg.Certificates.S3Region = v
	}

	return cfg, nil
}
