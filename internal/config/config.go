// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/ingest.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/region"
	"github.com/oshri1997/Deal-Hunter/internal/tier"
)

// Delivery channels.
const (
	ChannelLog      = "log"
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
)

// --------------------------------------------------------------------------
// Config, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration
	AutoMigrate    bool

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool
	LogLevel    slog.Level

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Admin auth (HS256 JWT secret). Empty disables /admin routes.
	AdminJWTSecret string

	// Ingestion
	Regions         []string
	FeedURL         string
	FeedAPIKey      string
	FeedRateLimit   float64
	ScrapeInterval  time.Duration
	ScrapePages     int
	ScrapeFullPages int
	ScrapeOnStart   bool
	StaleAfter      time.Duration
	MatchThreshold  float64

	// Notifications
	DeliveryChannel    string
	TelegramBotToken   string
	DiscordBotToken    string
	SendRateLimit      float64
	DigestHour         int
	DigestMinute       int
	DigestLocation     *time.Location
	MaxDealsPerMessage int
	DispatchInterval   time.Duration
	MaxSendAttempts    int
	RetryBackoff       time.Duration

	// Tiers
	FreeLimits tier.Limits

	// Exchange rates
	ExchangeRatesURL string
	BaseCurrency     string

	// Retention
	ObservationRetention time.Duration
	FailedRetention      time.Duration

	// Cache
	CacheEnabled bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	return load(dbURL)
}

// LoadWithoutDatabase reads configuration for commands that can run against
// the in-memory store.
func LoadWithoutDatabase() (*Config, error) {
	return load(envOr("DATABASE_URL", ""))
}

func load(dbURL string) (*Config, error) {
	regions, err := region.Validate(envList("REGIONS", region.Codes()))
	if err != nil {
		return nil, fmt.Errorf("REGIONS: %w", err)
	}

	hour, minute, err := parseClock(envOr("DIGEST_TIME", "09:00"))
	if err != nil {
		return nil, fmt.Errorf("DIGEST_TIME: %w", err)
	}
	tz := envOr("DIGEST_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("DIGEST_TIMEZONE %q: %w", tz, err)
	}

	level, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	channel := strings.ToLower(envOr("DELIVERY_CHANNEL", ChannelLog))
	switch channel {
	case ChannelLog, ChannelTelegram, ChannelDiscord:
	default:
		return nil, fmt.Errorf("DELIVERY_CHANNEL must be one of log, telegram, discord (got %q)", channel)
	}

	free := tier.Limits{
		Regions:  envInt("FREE_MAX_REGIONS", tier.DefaultFree.Regions),
		Wishlist: envInt("FREE_MAX_WISHLIST", tier.DefaultFree.Wishlist),
		Alerts:   envInt("FREE_MAX_ALERTS", tier.DefaultFree.Alerts),
	}
	if err := free.Validate(); err != nil {
		return nil, fmt.Errorf("free tier limits: %w", err)
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,
		AutoMigrate:    envBool("AUTO_MIGRATE", true),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),
		LogLevel:    level,

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		AdminJWTSecret: envOr("ADMIN_JWT_SECRET", ""),

		Regions:         regions,
		FeedURL:         envOr("FEED_URL", ""),
		FeedAPIKey:      envOr("FEED_API_KEY", ""),
		FeedRateLimit:   envFloat("FEED_RATE_LIMIT", 2),
		ScrapeInterval:  envDuration("SCRAPE_INTERVAL", 24*time.Hour),
		ScrapePages:     envInt("SCRAPE_PAGES", 2),
		ScrapeFullPages: envInt("SCRAPE_FULL_PAGES", 20),
		ScrapeOnStart:   envBool("SCRAPE_ON_START", false),
		StaleAfter:      envDuration("STALE_AFTER", 0),
		MatchThreshold:  envFloat("MATCH_THRESHOLD", 0.85),

		DeliveryChannel:    channel,
		TelegramBotToken:   envOr("TELEGRAM_BOT_TOKEN", ""),
		DiscordBotToken:    envOr("DISCORD_BOT_TOKEN", ""),
		SendRateLimit:      envFloat("SEND_RATE_LIMIT", 20),
		DigestHour:         hour,
		DigestMinute:       minute,
		DigestLocation:     loc,
		MaxDealsPerMessage: envInt("MAX_DEALS_PER_NOTIFICATION", 10),
		DispatchInterval:   envDuration("DISPATCH_INTERVAL", 30*time.Second),
		MaxSendAttempts:    envInt("MAX_SEND_ATTEMPTS", 5),
		RetryBackoff:       envDuration("RETRY_BACKOFF", time.Minute),

		FreeLimits: free,

		ExchangeRatesURL: envOr("EXCHANGE_RATES_URL", "https://open.er-api.com/v6/latest"),
		BaseCurrency:     strings.ToUpper(envOr("BASE_CURRENCY", "ILS")),

		ObservationRetention: envDuration("OBSERVATION_RETENTION", 90*24*time.Hour),
		FailedRetention:      envDuration("FAILED_RETENTION", 7*24*time.Hour),

		CacheEnabled: envBool("CACHE_ENABLED", true),
	}

	if cfg.MatchThreshold <= 0 || cfg.MatchThreshold > 1 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be in (0, 1], got %v", cfg.MatchThreshold)
	}
	if cfg.ScrapePages <= 0 || cfg.ScrapeFullPages <= 0 {
		return nil, fmt.Errorf("SCRAPE_PAGES and SCRAPE_FULL_PAGES must be positive")
	}
	if cfg.StaleAfter < 0 {
		return nil, fmt.Errorf("STALE_AFTER must not be negative")
	}
	return cfg, nil
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

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}
