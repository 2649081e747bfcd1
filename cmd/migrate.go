package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/application"
	"github.com/minetick/ticket-store/internal/config"
	"github.com/minetick/ticket-store/internal/logger"
	"github.com/minetick/ticket-store/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move ticket data between storage backends",
}

var migrateTo string

var migrateStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Copy every ticket from the configured backend into another backend type",
	RunE:  runMigrateStore,
}

func init() {
	migrateStoreCmd.Flags().StringVar(&migrateTo, "to", "", "target backend: memory, sqlite, cached_sqlite or postgres")
	_ = migrateStoreCmd.MarkFlagRequired("to")
	migrateCmd.AddCommand(migrateStoreCmd)
}

func runMigrateStore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	target, err := storage.ParseType(migrateTo)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	src, err := application.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer src.Close(ctx)

	if target == src.Type() {
		return errors.New("source and target backends are the same; nothing to copy")
	}

	var migrateErr error
	storage.Migrate(ctx, src, target, application.Builders(cfg, log),
		func() {
			log.Info("migration started",
				zap.String("from", string(src.Type())), zap.String("to", string(target)))
		},
		func() {
			log.Info("migration complete", zap.String("to", string(target)))
		},
		func(err error) {
			migrateErr = err
		},
	)
	if migrateErr != nil {
		return fmt.Errorf("migrate to %s: %w", target, migrateErr)
	}
	return nil
}
