package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	FollowStrategyEndpoint = "endpoint"
	FollowStrategyDirect   = "direct"

	CoverModeSigned = "signed"
	CoverModePublic = "public"
)

type Config struct {
	Port          string `env:"PORT" default:"8080"`
	BaseURL       string `env:"BASE_URL" default:"http://localhost:8080"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" default:"false"`

	AuthURL       string `env:"AUTH_URL"`
	AuthAnonKey   string `env:"AUTH_ANON_KEY"`
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`

	BackendBaseURL string `env:"BACKEND_BASE_URL"`
	FollowStrategy string `env:"FOLLOW_STRATEGY" default:"endpoint"`

	S3Endpoint       string `env:"S3_ENDPOINT" default:"http://localhost:9000"`
	S3PublicEndpoint string `env:"S3_PUBLIC_ENDPOINT"`
	S3Bucket         string `env:"S3_BUCKET" default:"recordings"`
	S3AccessKey      string `env:"S3_ACCESS_KEY"`
	S3SecretKey      string `env:"S3_SECRET_KEY"`
	S3Region         string `env:"S3_REGION" default:"us-east-1"`
	CoverMode        string `env:"COVER_MODE" default:"signed"`

	RedisURL             string        `env:"REDIS_URL"`
	SessionSecret        string        `env:"SESSION_SECRET"`
	SessionEncryptionKey string        `env:"SESSION_ENCRYPTION_KEY"`
	SessionMaxAge        time.Duration `env:"SESSION_MAX_AGE" default:"168h"`

	GeoIPDBPath string `env:"GEOIP_DB_PATH"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", c.DatabaseURL},
		{"AUTH_URL", c.AuthURL},
		{"AUTH_ANON_KEY", c.AuthAnonKey},
		{"AUTH_JWT_SECRET", c.AuthJWTSecret},
		{"BACKEND_BASE_URL", c.BackendBaseURL},
		{"SESSION_SECRET", c.SessionSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	switch c.FollowStrategy {
	case FollowStrategyEndpoint, FollowStrategyDirect:
	default:
		return fmt.Errorf("FOLLOW_STRATEGY must be %q or %q, got %q", FollowStrategyEndpoint, FollowStrategyDirect, c.FollowStrategy)
	}

	switch c.CoverMode {
	case CoverModeSigned, CoverModePublic:
	default:
		return fmt.Errorf("COVER_MODE must be %q or %q, got %q", CoverModeSigned, CoverModePublic, c.CoverMode)
	}

	if len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 characters")
	}

	if c.SessionEncryptionKey != "" {
		key, err := hex.DecodeString(c.SessionEncryptionKey)
		if err != nil {
			return fmt.Errorf("SESSION_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("SESSION_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(key))
		}
	}

	return nil
}

// SecureCookies reports whether cookies should carry the Secure flag.
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.BaseURL, "https://")
}
