package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	RedisAddr    string
	NatsURL      string
	Port         string
	JWTSecret    string
	RateAPIURL   string
	AllowOrigins string
	Env          string
}

// New loads configuration from environment variables, with .env as an optional
// local override. NATS is optional: an empty NatsURL disables event publishing.
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		NatsURL:      os.Getenv("NATS_URL"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", "supersecretmvp"),
		RateAPIURL:   getEnv("RATE_API_URL", "https://api.coingecko.com/api/v3/simple/price"),
		AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000"),
		Env:          getEnv("ENV", "development"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("missing required env: DATABASE_URL")
	}

	return cfg, nil
}

func (c *Config) ListenAddr() string {
	return "0.0.0.0:" + c.Port
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
