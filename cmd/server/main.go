package main

import (
	"log"

	"anoa.com/evalhub/internal/bootstrap"
	"anoa.com/evalhub/internal/config"
	"anoa.com/evalhub/internal/server"
	"anoa.com/evalhub/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := database.Connect(cfg.DatabaseURL)
	if err := bootstrap.Migrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	if err := bootstrap.SeedGroups(db); err != nil {
		log.Fatalf("failed to seed groups: %v", err)
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.SeedAdminUser(db); err != nil {
			log.Fatalf("failed to seed admin user: %v", err)
		}
	}

	redisClient := database.ConnectRedis(cfg.RedisURL)
	if redisClient == nil {
		log.Println("REDIS_URL not set, fragment cache and live notifications disabled")
	}

	srv := server.NewServer(cfg, db, redisClient)
	if err := srv.Run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}
