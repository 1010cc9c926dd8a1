package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	_ "github.com/lib/pq"
	"github.com/vncsmyrnk/poll-ledger/internal/adapters/repository/postgres"
	"github.com/vncsmyrnk/poll-ledger/internal/config"
)

// Usage:
//
//	migrations all                  apply every up migration
//	migrations create_polls.up      run a single script by name suffix
func main() {
	if len(os.Args) < 2 {
		log.Fatal("a migration name is required.")
	}
	migrationName := os.Args[1]

	cfg := config.LoadConfig()
	db, err := sql.Open("postgres", cfg.Database.ConnString())
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	if migrationName == "all" {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatalf("Failed to migrate: %v", err)
		}
		log.Println("All migrations applied successfully.")
		return
	}

	name, content, err := postgres.MigrationFile(migrationName)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, string(content)); err != nil {
		log.Fatalf("Failed to execute SQL file: %v", err)
	}
	log.Printf("Migration %s executed successfully.", name)
}
