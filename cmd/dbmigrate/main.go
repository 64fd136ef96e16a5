package main

import (
	"flag"
	"fmt"
	"log"

	"tg-relay/internal/config"
	"tg-relay/internal/models"
	"tg-relay/internal/storage"

	"gorm.io/gorm"
)

func main() {
	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	action := flag.String("action", "migrate", "Action to perform (migrate, reset, status)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	db, err := storage.Initialize(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Perform requested action
	switch *action {
	case "migrate":
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migration completed successfully")
	case "reset":
		if err := resetDatabase(db); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("Database reset completed successfully")
	case "status":
		if err := checkStatus(db); err != nil {
			log.Fatalf("Status check failed: %v", err)
		}
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// resetDatabase drops tables and recreates them
func resetDatabase(db *gorm.DB) error {
	fmt.Println("Resetting database...")

	// Confirm reset operation
	fmt.Print("WARNING: This will delete all data! Are you sure? (y/N): ")
	var confirmation string
	fmt.Scanln(&confirmation)

	if confirmation != "y" && confirmation != "Y" {
		return fmt.Errorf("operation cancelled by user")
	}

	// Drop tables in reverse order to avoid foreign key constraints
	if err := db.Migrator().DropTable(&models.MessageMapping{}); err != nil {
		return fmt.Errorf("failed to drop MessageMapping table: %w", err)
	}
	if err := db.Migrator().DropTable(&models.Sender{}); err != nil {
		return fmt.Errorf("failed to drop Sender table: %w", err)
	}

	// Recreate tables
	return storage.Migrate(db)
}

// checkStatus checks the database status
func checkStatus(db *gorm.DB) error {
	fmt.Println("Checking database status...")

	for _, table := range []struct {
		name  string
		model interface{}
	}{
		{"Sender", &models.Sender{}},
		{"MessageMapping", &models.MessageMapping{}},
	} {
		if db.Migrator().HasTable(table.model) {
			fmt.Printf("✅ %s table exists\n", table.name)

			var count int64
			db.Model(table.model).Count(&count)
			fmt.Printf("   - Contains %d records\n", count)
		} else {
			fmt.Printf("❌ %s table does not exist\n", table.name)
		}
	}

	return nil
}
