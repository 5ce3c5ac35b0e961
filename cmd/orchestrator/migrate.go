package main

import (
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done := setup()
		defer done()
		defer zap.S().Info("db migrated")

		zap.S().Info("initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := service.Migrate(cmd.Context(), cfg, db, s); err != nil {
			zap.S().Fatalw("migrating schema", "error", err)
		}
		if err := content.NewStore(db).Migrate(cmd.Context()); err != nil {
			zap.S().Fatalw("migrating content store", "error", err)
		}

		return nil
	},
}
