package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/opensensors/airsense/migrations"
	"github.com/opensensors/airsense/pkg/migrate"
)

func main() {
	var (
		dbDSN          = flag.String("dsn", "", "PostgreSQL connection string")
		migrationTable = flag.String("table", "schema_migrations", "Migration table name")
		command        = flag.String("command", "up", "Migration command: up, down, to, version, status")
		targetVersion  = flag.String("target", "", "Target version for down/to commands")
		helpFlag       = flag.Bool("help", false, "Show help")
	)

	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}

	if *dbDSN == "" {
		*dbDSN = os.Getenv("DATABASE_WRITE_URL")
	}
	if *dbDSN == "" {
		fmt.Fprintf(os.Stderr, "Error: -dsn flag or DATABASE_WRITE_URL is required\n")
		showHelp()
		os.Exit(1)
	}

	// Open database connection
	db, err := sql.Open("postgres", *dbDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test the connection
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Migrations ship inside the binary
	provider := migrate.NewFSProvider(migrations.FS, *migrationTable)
	migrator := migrate.NewMigrator(db, provider)

	// Execute command
	switch *command {
	case "up":
		err = migrator.MigrateUp()
	case "down":
		if *targetVersion == "" {
			fmt.Fprintf(os.Stderr, "Error: -target flag is required for down command\n")
			os.Exit(1)
		}
		var target int
		target, err = strconv.Atoi(*targetVersion)
		if err != nil {
			log.Fatalf("Invalid target version: %v", err)
		}
		err = migrator.MigrateDown(target)
	case "to":
		if *targetVersion == "" {
			fmt.Fprintf(os.Stderr, "Error: -target flag is required for to command\n")
			os.Exit(1)
		}
		var target int
		target, err = strconv.Atoi(*targetVersion)
		if err != nil {
			log.Fatalf("Invalid target version: %v", err)
		}
		err = migrator.MigrateTo(target)
	case "version":
		var version int
		version, err = migrator.GetCurrentVersion()
		if err != nil {
			log.Fatalf("Failed to get current version: %v", err)
		}
		fmt.Printf("Current version: %d\n", version)
		return
	case "status":
		err = showStatus(migrator)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", *command)
		showHelp()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Migration command failed: %v", err)
	}

	fmt.Println("Migration completed successfully")
}

func showStatus(migrator *migrate.Migrator) error {
	currentVersion, err := migrator.GetCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending, err := migrator.GetPendingMigrations()
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	fmt.Printf("Current version: %d\n", currentVersion)
	fmt.Printf("Pending migrations: %d\n", len(pending))

	if len(pending) > 0 {
		fmt.Println("\nPending migrations:")
		for _, migration := range pending {
			fmt.Printf("  %d: %s\n", migration.Version, migration.Name)
		}
	}

	return nil
}

func showHelp() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  airsense-migrate [flags]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -dsn string        PostgreSQL connection string (or DATABASE_WRITE_URL)")
	fmt.Println("  -table string      Migration table name (default: schema_migrations)")
	fmt.Println("  -command string    Migration command (default: up)")
	fmt.Println("  -target string     Target version for down/to commands")
	fmt.Println("  -help              Show this help message")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up                 Apply all pending migrations")
	fmt.Println("  down               Roll back to the target version")
	fmt.Println("  to                 Migrate up or down to the target version")
	fmt.Println("  version            Print the current schema version")
	fmt.Println("  status             Show current version and pending migrations")
}
