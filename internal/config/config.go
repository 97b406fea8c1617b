// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/server and cmd/airctl.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Location
// --------------------------------------------------------------------------

// Location identifies the monitored city in IQAir terms plus a display name.
type Location struct {
	City    string
	State   string
	Country string
	Name    string // shown in messages
}

// --------------------------------------------------------------------------
// Table names, matching internal/db/schema.sql
// --------------------------------------------------------------------------

const (
	SubscribersTable = "subscribers"
	DeliveriesTable  = "deliveries"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	LogLevel    slog.Level

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Upstream provider
	IQAirAPIKey       string
	IQAirBaseURL      string
	IQAirRequestsPerM int
	Location          Location

	// Telegram
	TelegramBotToken  string
	TelegramAPIURL    string
	SendRatePerSecond float64

	// Scheduling
	Timezone        string
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	AlertInterval   time.Duration
	DeliveryWorkers int

	// Maintenance
	DeliveryLogRetention time.Duration
	CleanupInterval      time.Duration

	// Optional reading snapshot (Redis) and broadcast (MQTT)
	RedisURL      string
	SnapshotTTL   time.Duration
	MQTTBrokerURL string
	MQTTTopic     string
	MQTTClientID  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 8),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    level,

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		IQAirAPIKey:       envOr("IQAIR_API_KEY", ""),
		IQAirBaseURL:      envOr("IQAIR_BASE_URL", "http://api.airvisual.com/v2"),
		IQAirRequestsPerM: envInt("IQAIR_REQUESTS_PER_MINUTE", 5),
		Location: Location{
			City:    envOr("AIR_CITY", "Almaty"),
			State:   envOr("AIR_STATE", "Almaty Oblysy"),
			Country: envOr("AIR_COUNTRY", "Kazakhstan"),
			Name:    envOr("LOCATION_NAME", "Almaty"),
		},

		TelegramBotToken:  envOr("TELEGRAM_BOT_TOKEN", envOr("BOT_TOKEN", "")),
		TelegramAPIURL:    envOr("TELEGRAM_API_URL", "https://api.telegram.org"),
		SendRatePerSecond: envFloat("SEND_RATE_PER_SECOND", 25),

		Timezone:        envOr("TIMEZONE", "Asia/Almaty"),
		CacheTTL:        envDuration("CACHE_TTL", 10*time.Minute),
		FetchTimeout:    envDuration("FETCH_TIMEOUT", 15*time.Second),
		AlertInterval:   envDuration("ALERT_INTERVAL", 15*time.Minute),
		DeliveryWorkers: envInt("DELIVERY_WORKERS", 8),

		DeliveryLogRetention: envDuration("DELIVERY_LOG_RETENTION", 30*24*time.Hour),
		CleanupInterval:      envDuration("CLEANUP_INTERVAL", 6*time.Hour),

		RedisURL:      envOr("REDIS_URL", ""),
		SnapshotTTL:   envDuration("SNAPSHOT_TTL", time.Hour),
		MQTTBrokerURL: envOr("MQTT_BROKER_URL", ""),
		MQTTTopic:     envOr("MQTT_TOPIC", "almaty-air/reading"),
		MQTTClientID:  envOr("MQTT_CLIENT_ID", "almaty-air"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.AlertInterval <= 0 {
		return fmt.Errorf("ALERT_INTERVAL must be positive, got %s", c.AlertInterval)
	}
	if c.IQAirRequestsPerM < 1 {
		return fmt.Errorf("IQAIR_REQUESTS_PER_MINUTE must be at least 1, got %d", c.IQAirRequestsPerM)
	}
	// Back-to-back fetches wait one limiter interval, which must fit in the
	// fetch timeout.
	if interval := time.Minute / time.Duration(c.IQAirRequestsPerM); interval >= c.FetchTimeout {
		return fmt.Errorf("FETCH_TIMEOUT (%s) must exceed the IQAir request interval (%s at %d/min)",
			c.FetchTimeout, interval, c.IQAirRequestsPerM)
	}
	if c.DeliveryWorkers < 1 {
		return fmt.Errorf("DELIVERY_WORKERS must be at least 1, got %d", c.DeliveryWorkers)
	}
	if c.SendRatePerSecond <= 0 {
		return fmt.Errorf("SEND_RATE_PER_SECOND must be positive, got %v", c.SendRatePerSecond)
	}
	return nil
}

// TimeLocation returns the loaded scheduling timezone. Load has already
// validated it, so the UTC fallback only applies to hand-built configs.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
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

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
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

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
