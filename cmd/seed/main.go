package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/config"
	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/repositories"
	"github.com/your-org/contentd/internal/seed"
	"github.com/your-org/contentd/pkg/logger"
)

// seedStore is the write surface a backend must offer the importer.
type seedStore interface {
	domain.ContentSeeder
	domain.HealthChecker
	Close() error
}

func main() {
	var configPath string
	var timeout time.Duration

	root := &cobra.Command{
		Use:   "seed <dump.json>",
		Short: "Import a content dump into the configured store",
		Long: `Reads a JSON content dump (pages and elements with embedded contents)
and upserts it into the store selected by the configuration. The running
API is read-only; this command is the only write path.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(configPath, args[0], timeout)
		},
	}

	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults to APP_CONFIG_PATH, then config.yaml)")
	root.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall import timeout")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(configPath, dumpPath string, timeout time.Duration) error {
	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.Get()
	defer log.Sync()

	if configPath == "" {
		configPath = os.Getenv("APP_CONFIG_PATH")
	}
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Load(configPath); err != nil {
		log.Warn("failed to load config file, falling back to defaults and environment",
			zap.String("path", configPath),
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}
	cfg := config.Get()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	loader := seed.NewLoader(log)
	dump, err := loader.LoadFile(dumpPath)
	if err != nil {
		return err
	}
	if err := loader.Apply(ctx, dump, store); err != nil {
		return err
	}

	log.Info("import finished",
		zap.String("dump", dumpPath),
		zap.String("backend", cfg.Store.Backend),
	)
	return nil
}

// openStore opens the configured backend and makes sure its collections
// exist before any writes.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (seedStore, error) {
	var store seedStore

	switch cfg.Store.Backend {
	case config.BackendReindexer:
		repo, err := repositories.NewReindexerRepository(
			cfg.Store.Reindexer.DSN,
			cfg.Store.Reindexer.MaxConnections,
			log,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = repo

	case config.BackendSQLite:
		repo, err := repositories.NewSQLiteRepository(cfg.Store.SQLite.Path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		store = repo

	case config.BackendMemory:
		return nil, fmt.Errorf("the memory backend is not persistent; seeding it has no effect")

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if err := store.CheckConnection(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("store connection check failed: %w", err)
	}
	if err := store.EnsureCollections(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to ensure collections: %w", err)
	}
	return store, nil
}
