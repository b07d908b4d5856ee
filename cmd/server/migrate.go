package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soaringjerry/Formly/internal/api"
	"github.com/soaringjerry/Formly/internal/config"
	"github.com/soaringjerry/Formly/internal/db"
	"github.com/soaringjerry/Formly/internal/mongostore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, _, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		_, closeStore, err := openStore(cmd.Context(), cfg.Store, log)
		if err != nil {
			return err
		}
		return closeStore()
	},
}

// openStore connects to the configured backend and brings its schema up to date.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (api.Store, func() error, error) {
	switch cfg.Driver {
	case "mongo":
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, log.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, fmt.Errorf("mongo migrate: %w", err)
		}
		log.Info("mongo store ready", zap.String("database", cfg.MongoDatabase))
		return store, func() error { return store.Close(context.Background()) }, nil
	default:
		if !strings.Contains(cfg.SQLitePath, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		conn, err := db.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		applied, err := db.RunMigrations(ctx, conn, cfg.MigrationsDir, log)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		store, err := db.NewSQLiteStore(conn, log)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		log.Info("sqlite store ready", zap.String("path", cfg.SQLitePath), zap.Strings("applied", applied))
		return store, conn.Close, nil
	}
}
