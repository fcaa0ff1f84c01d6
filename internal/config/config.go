package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string

	DatabaseURL string
	RedisURL    string

	MeiliSearchHost string
	MeiliMasterKey  string

	// Locales the UI serves; navbar fragments are cached per locale.
	Locales          []string
	FragmentCacheTTL time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		MeiliSearchHost: getEnv("MEILISEARCH_HOST", "http://localhost:7700"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		Locales: splitList(getEnv("LOCALES", "en,de")),
	}

	var err error
	cfg.FragmentCacheTTL, err = time.ParseDuration(getEnv("FRAGMENT_CACHE_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid FRAGMENT_CACHE_TTL: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
