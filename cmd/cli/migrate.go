package cli

import (
	"dealflow/internal/models"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log := LoadConfig()
		db, err := openDatabase(cfg, log)
		if err != nil {
			return err
		}
		log.Info("Starting database migration...")
		if err := models.AutoMigrate(db); err != nil {
			return err
		}
		log.Info("Database migration completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
