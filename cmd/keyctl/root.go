package main

import (
	"context"
	"fmt"
	"os"

	"github.com/makkenzo/prospect-enrichment-api/internal/config"
	"github.com/makkenzo/prospect-enrichment-api/internal/service"
	"github.com/makkenzo/prospect-enrichment-api/internal/storage/postgres"
	"github.com/makkenzo/prospect-enrichment-api/pkg/logger"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg        *config.Config
	appLogger  *zap.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "keyctl",
	Short: "Manage the enrichment provider key pool",
	Long:  "Imports, lists, toggles and deletes provider API keys, and issues bearer tokens for the enrichment API.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		l, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		appLogger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Sync()
		}
	},
	SilenceUsage: true,
}

// openKeyService connects to Postgres. The returned func closes the pool.
func openKeyService(ctx context.Context) (*service.APIKeyService, func(), error) {
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, nil, eris.Errorf("keyctl needs the postgres driver, got %q", cfg.Database.Driver)
	}
	pool, err := postgres.NewPgxPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		return nil, nil, eris.Wrap(err, "connect to postgres")
	}
	repo := postgres.NewAPIKeyRepository(pool, appLogger)
	return service.NewAPIKeyService(repo, appLogger), pool.Close, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
