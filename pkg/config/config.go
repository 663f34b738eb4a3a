// Package config loads the runtime configuration from environment
// variables with development defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration.
type Config struct {
	HTTPPort      int
	PublicBaseURL string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string
	TokenTTL  time.Duration

	Workers            int
	CommandTimeout     time.Duration
	PollInterval       time.Duration
	OrphanScanInterval time.Duration
	OrphanAge          time.Duration

	WSWriteTimeout time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int
}

// Load reads configuration from the environment. JWT_SECRET has no default:
// a guessable signing key is worse than refusing to start.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:      envInt("HTTP_PORT", 8080),
		PublicBaseURL: envStr("PUBLIC_BASE_URL", "http://localhost:8080"),

		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBUser:     envStr("DB_USER", "sovd"),
		DBPassword: envStr("DB_PASSWORD", "sovd"),
		DBName:     envStr("DB_NAME", "sovd"),
		DBSSLMode:  envStr("DB_SSLMODE", "disable"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		TokenTTL:  envDuration("TOKEN_TTL", 24*time.Hour),

		Workers:            envInt("WORKER_COUNT", 4),
		CommandTimeout:     envDuration("COMMAND_TIMEOUT", 30*time.Second),
		PollInterval:       envDuration("QUEUE_POLL_INTERVAL", 5*time.Second),
		OrphanScanInterval: envDuration("ORPHAN_SCAN_INTERVAL", time.Minute),
		OrphanAge:          envDuration("ORPHAN_AGE", 5*time.Minute),

		WSWriteTimeout: envDuration("WS_WRITE_TIMEOUT", 10*time.Second),

		RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		RateLimitBurst:     envInt("RATE_LIMIT_BURST", 20),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.OrphanAge <= cfg.CommandTimeout {
		return nil, fmt.Errorf("ORPHAN_AGE (%s) must exceed COMMAND_TIMEOUT (%s)", cfg.OrphanAge, cfg.CommandTimeout)
	}
	return cfg, nil
}

// DSN builds the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
