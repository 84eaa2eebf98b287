// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the server and CLI read.
type Config struct {
	Port        string
	DatabaseURL string
	CORSOrigin  string

	JWTSecret string
	JWTIssuer string

	LogLevel  string
	LogFormat string

	Media MediaConfig

	MaxUploadMB        int64
	AuditRetryTimeout  time.Duration
	AuditRetryInterval time.Duration
}

// MediaConfig selects the blob store backend. Type decides which other
// fields are relevant.
type MediaConfig struct {
	Type    string // "memory", "filesystem" or "s3"
	Dir     string // filesystem only
	BaseURL string // filesystem only; public prefix the files are served under

	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3PublicURL       string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "sqlite://setor7.db")
	v.SetDefault("CORS_ORIGIN", "*")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("MEDIA_STORE", "filesystem")
	v.SetDefault("MEDIA_DIR", "./media")
	v.SetDefault("MEDIA_BASE_URL", "/media")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_PREFIX", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_PUBLIC_URL", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("MAX_UPLOAD_MB", 50)
	v.SetDefault("AUDIT_RETRY_TIMEOUT", "5s")
	v.SetDefault("AUDIT_RETRY_INTERVAL", "100ms")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// Production sets variables directly.
		slog.Debug("no .env file found, reading from environment")
	}
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("PORT"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		CORSOrigin:  v.GetString("CORS_ORIGIN"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		JWTIssuer:   v.GetString("JWT_ISSUER"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		LogFormat:   v.GetString("LOG_FORMAT"),
		Media: MediaConfig{
			Type:              strings.ToLower(v.GetString("MEDIA_STORE")),
			Dir:               v.GetString("MEDIA_DIR"),
			BaseURL:           v.GetString("MEDIA_BASE_URL"),
			S3Bucket:          v.GetString("S3_BUCKET"),
			S3Prefix:          v.GetString("S3_PREFIX"),
			S3Region:          v.GetString("S3_REGION"),
			S3Endpoint:        v.GetString("S3_ENDPOINT"),
			S3PublicURL:       v.GetString("S3_PUBLIC_URL"),
			S3AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			S3SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
		MaxUploadMB: v.GetInt64("MAX_UPLOAD_MB"),
	}

	var err error
	if cfg.AuditRetryTimeout, err = time.ParseDuration(v.GetString("AUDIT_RETRY_TIMEOUT")); err != nil {
		return nil, fmt.Errorf("parsing AUDIT_RETRY_TIMEOUT: %w", err)
	}
	if cfg.AuditRetryInterval, err = time.ParseDuration(v.GetString("AUDIT_RETRY_INTERVAL")); err != nil {
		return nil, fmt.Errorf("parsing AUDIT_RETRY_INTERVAL: %w", err)
	}
	return cfg, nil
}

// Validate checks settings needed by every command.
func (c *Config) Validate() error {
	switch c.Media.Type {
	case "memory", "filesystem":
	case "s3":
		if c.Media.S3Bucket == "" {
			return errors.New("s3 media store requires S3_BUCKET to be set")
		}
	default:
		return fmt.Errorf("unknown MEDIA_STORE: %q", c.Media.Type)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.AuditRetryTimeout <= 0 || c.AuditRetryInterval <= 0 {
		return errors.New("audit retry timeout and interval must be positive")
	}
	return nil
}

// ValidateServe additionally requires what the HTTP server needs.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set to verify session tokens")
	}
	return nil
}
