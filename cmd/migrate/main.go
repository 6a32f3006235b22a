package main

import (
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/vitaliisemenov/turnsync/internal/infrastructure/migrations"
)

func main() {
	migrationConfig, err := migrations.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load migration config: %v", err)
	}

	healthConfig, err := migrations.LoadHealthConfig()
	if err != nil {
		log.Fatalf("Failed to load health config: %v", err)
	}

	manager, err := migrations.NewMigrationManager(migrationConfig)
	if err != nil {
		log.Fatalf("Failed to create migration manager: %v", err)
	}

	healthChecker := migrations.NewHealthChecker(nil, healthConfig, migrationConfig.Logger)

	cli := migrations.NewCLI(manager, healthChecker, migrationConfig.Logger)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
