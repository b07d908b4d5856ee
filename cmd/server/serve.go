package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/Formly/internal/api"
	"github.com/soaringjerry/Formly/internal/cache"
	"github.com/soaringjerry/Formly/internal/config"
	"github.com/soaringjerry/Formly/internal/middleware"
	"github.com/soaringjerry/Formly/internal/services"
)

const draftSweepInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, level, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	var (
		tplCache services.TemplateCache
		drafts   services.DraftStore
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		tplCache = cache.NewTemplateCache(rdb)
		drafts = cache.NewRedisDrafts(rdb)
		log.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := cache.NewMemoryDrafts()
		drafts = mem
		g.Go(func() error { return mem.RunSweeper(gctx, draftSweepInterval) })
	}

	secret := cfg.Server.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("server.jwt_secret not set; using a random secret, tokens will not survive a restart")
	}
	auth := middleware.NewAuthenticator(secret, store.GetUser, log.Named("auth"))
	svc := api.NewServices(store, tplCache, drafts, auth, cfg.Server.TokenTTL.Duration, log)
	router := api.NewRouter(api.Options{
		Services:      svc,
		Authenticator: auth,
		Ping:          store.Ping,
		Log:           log.Named("http"),
		CORSOrigins:   cfg.Server.CORSOrigins,
		Version:       versionString(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		log.Info("formly listening", zap.String("addr", cfg.Server.Addr), zap.String("version", versionString()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if configPath != "" {
		// Only the log level is applied live; other settings need a restart.
		g.Go(func() error {
			return config.Watch(gctx, configPath, log, func(next config.Config) {
				if err := setLevel(level, next.Log.Level); err != nil {
					log.Warn("ignoring log level", zap.Error(err))
				}
			})
		})
	}
	return g.Wait()
}
