package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	RedisURL    string
	DatabaseURL string

	PubSubEnabled     bool
	LockTimeout       time.Duration
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PubSubEnabled: getEnv("FEED_PUBSUB_ENABLED", "true") == "true",
	}

	// Parsing durations
	var err error
	cfg.LockTimeout, err = time.ParseDuration(getEnv("FEED_LOCK_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_LOCK_TIMEOUT: %w", err)
	}
	cfg.ReconcileInterval, err = time.ParseDuration(getEnv("FEED_RECONCILE_INTERVAL", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_RECONCILE_INTERVAL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
