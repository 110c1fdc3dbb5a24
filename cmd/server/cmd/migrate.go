package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/alphauslabs/buckshot/internal/config"
	"github.com/alphauslabs/buckshot/internal/database"
	"github.com/alphauslabs/buckshot/internal/database/sqlite"
	"github.com/alphauslabs/buckshot/internal/queue"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Long: `Apply the table and index DDL to the configured database. SQLite
databases are migrated automatically when opened; for Spanner this must be
run once against an empty database.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	switch cfg.Database.Provider {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
		log.Printf("Migrated sqlite database at %s", cfg.Database.Path)
		return store.Close()
	case "spanner":
		statements := append(append([]string{}, database.Schema...), queue.Schema...)
		dbPath := database.DatabasePath(cfg.Database.ProjectID, cfg.Database.Instance, cfg.Database.Database)
		log.Printf("Applying %d DDL statements to %s", len(statements), dbPath)
		if err := database.ApplySchema(context.Background(), dbPath, statements); err != nil {
			return err
		}
		log.Println("Schema applied")
		return nil
	default:
		return fmt.Errorf("unsupported database provider: %s", cfg.Database.Provider)
	}
}
