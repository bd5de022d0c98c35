package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values for both the service and the terminal.
type Config struct {
	Env          string
	Secret       string
	DatabaseDSN  string
	HTTPPort     string
	TokenTTL     time.Duration
	SeedProducts string

	APIURL       string
	Username     string
	Password     string
	CameraBinary string
}

// Load reads configuration from the environment with reasonable defaults. A .env file in the
// working directory is loaded first when present; real environment variables win over it.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Env:          getenv("APP_ENV", "development"),
		Secret:       getenv("SECRET", "dev_secret"),
		DatabaseDSN:  getenv("DATABASE_DSN", "file:kasir.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"),
		HTTPPort:     getenv("HTTP_PORT", "8888"),
		SeedProducts: getenv("SEED_PRODUCTS", "assets/products.csv"),
		APIURL:       getenv("KASIR_API_URL", "http://localhost:8888"),
		Username:     os.Getenv("KASIR_USERNAME"),
		Password:     os.Getenv("KASIR_PASSWORD"),
		CameraBinary: getenv("KASIR_CAMERA", "zbarcam"),
	}

	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		return Config{}, fmt.Errorf("invalid HTTP_PORT value %q", cfg.HTTPPort)
	}

	ttl, err := time.ParseDuration(getenv("TOKEN_TTL", "24h"))
	if err != nil || ttl <= 0 {
		return Config{}, fmt.Errorf("invalid TOKEN_TTL value %q", os.Getenv("TOKEN_TTL"))
	}
	cfg.TokenTTL = ttl

	return cfg, nil
}

// Production reports whether APP_ENV selects production behaviour.
func (c Config) Production() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
