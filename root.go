package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"batchqc/internal/config"
	"batchqc/internal/logging"
	"batchqc/internal/store"
	"batchqc/internal/store/memory"
	"batchqc/internal/store/postgres"
	"batchqc/internal/store/sqlite"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "batchqc",
	Short: "Final quality control of production batches",
	Long: "batchqc tracks production batches through smelting, refining, cooling,\n" +
		"heat treatment and mechanical processing, and records their final\n" +
		"quality-control inspection.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

var (
	configPath string
	logLevel   string
	driverFlag string
	dsnFlag    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "batchqc.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&driverFlag, "driver", "", "storage driver: memory, sqlite or postgres")
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "storage DSN (SQLite path or PostgreSQL URL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.Version = version
}

// loadConfig reads the config file and environment, then applies the
// persistent flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if driverFlag != "" {
		cfg.Storage.Driver = driverFlag
	}
	if dsnFlag != "" {
		cfg.Storage.DSN = dsnFlag
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
}

// openStore opens the configured store. SQLite and PostgreSQL stores are
// migrated on open.
func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		s, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
