package database

import (
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the postgres connection. databaseURL wins when set;
// otherwise the DSN is assembled from the DB_* environment variables.
func Connect(databaseURL string) *gorm.DB {
	dsn := databaseURL
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			valueOrDefault("DB_HOST", "localhost"),
			valueOrDefault("DB_USER", "postgres"),
			os.Getenv("DB_PASS"),
			valueOrDefault("DB_NAME", "evalhub"),
			valueOrDefault("DB_PORT", "5432"),
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	return db
}

// ConnectRedis returns a client for the given URL, or nil when none is
// configured. Callers treat a nil client as "cache and pub/sub disabled".
func ConnectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("invalid REDIS_URL, running without redis: %v", err)
		return nil
	}

	return redis.NewClient(opts)
}

func valueOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}
