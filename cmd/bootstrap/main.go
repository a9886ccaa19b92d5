// Package main 初始化用量流水表
package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"z-song-ai-api/internal/config"
	"z-song-ai-api/internal/domain/entity"
	"z-song-ai-api/internal/infrastructure/persistence/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.Driver == "" {
		log.Fatalf("database.driver is not configured, nothing to migrate")
	}

	fmt.Printf("Migrating usage table (driver=%s)...\n", cfg.Database.Driver)

	client, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer client.Close()

	if err := client.DB().AutoMigrate(&entity.LLMUsageEvent{}); err != nil {
		log.Fatalf("failed to migrate llm_usage_events: %v", err)
	}

	fmt.Println("Bootstrap completed.")
}
