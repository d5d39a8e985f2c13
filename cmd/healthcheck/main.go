package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/formdeck/formdeck/internal/config"
	"github.com/formdeck/formdeck/internal/database"
	"github.com/formdeck/formdeck/internal/services"
	"github.com/formdeck/formdeck/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Check the API server is accepting connections
	if err := utils.PingServer(cfg.Port); err != nil {
		log.Fatalf("Server unreachable: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Perform health check
	result := services.HealthCheck(cfg, db)

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}

	fmt.Println(string(output))

	// Exit with appropriate code
	if result.Status != "healthy" {
		os.Exit(1)
	}
	os.Exit(0)
}
