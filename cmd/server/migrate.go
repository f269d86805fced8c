package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ai-image-editor-backend/internal/config"
	"ai-image-editor-backend/internal/database"
)

func migrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			log := config.NewLogger(cfg)

			migrator, err := database.NewMigrator(cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			defer migrator.Close()

			if dryRun {
				pending, err := migrator.Pending(cmd.Context())
				if err != nil {
					return err
				}
				for _, name := range pending {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			return migrator.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")

	return cmd
}
