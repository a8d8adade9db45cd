package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, sourced from the environment.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // postgres DSN; empty selects the sqlite dev database

	JWTSecret  string
	CSRFSecret string
	TokenTTL   time.Duration

	StripeWebhookSecret string

	BinanceBaseURL     string
	BybitBaseURL       string
	TradovateBaseURL   string
	NinjaTraderBaseURL string

	PortfolioRefreshSpec string // cron spec for the position re-marking job
	PriceCacheTTL        time.Duration
}

// Load reads configuration from the environment. A .env file is loaded if
// present but is not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		CSRFSecret: os.Getenv("CSRF_SECRET"),
		TokenTTL:   getDuration("TOKEN_TTL", 24*time.Hour),

		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),

		BinanceBaseURL:     getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		BybitBaseURL:       getEnv("BYBIT_BASE_URL", "https://api.bybit.com"),
		TradovateBaseURL:   getEnv("TRADOVATE_BASE_URL", "https://demo.tradovateapi.com/v1"),
		NinjaTraderBaseURL: getEnv("NINJATRADER_BASE_URL", "http://localhost:8081"),

		PortfolioRefreshSpec: getEnv("PORTFOLIO_REFRESH_SPEC", "@every 1m"),
		PriceCacheTTL:        getDuration("PRICE_CACHE_TTL", 10*time.Second),
	}

	if cfg.JWTSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "quantdesk-dev-secret"
	}
	if cfg.CSRFSecret == "" {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("CSRF_SECRET is required in production")
		}
		cfg.CSRFSecret = "quantdesk-dev-csrf"
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are treated as seconds.
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
