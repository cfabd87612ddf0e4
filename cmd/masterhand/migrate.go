package main

import (
	"fmt"

	"masterhand/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			db, err := database.NewDB(cfg.Database.Path, logger)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info().Str("path", cfg.Database.Path).Msg("schema is up to date")
			return nil
		},
	}
}
