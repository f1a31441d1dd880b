package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Skufu/smarthealth/internal/config"
	"github.com/Skufu/smarthealth/internal/health"
	"github.com/Skufu/smarthealth/internal/logger"
	"github.com/Skufu/smarthealth/internal/store"
	"github.com/Skufu/smarthealth/internal/transport/httpapi"
	"github.com/Skufu/smarthealth/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	gin.SetMode(cfg.HTTP.GinMode)

	svc, clf, err := buildService(cfg, log)
	if err != nil {
		log.Error("model startup failed", zap.Error(err))
		return err
	}
	defer func() {
		if err := clf.Close(); err != nil {
			log.Warn("classifier close failed", zap.Error(err))
		}
	}()

	ctx := context.Background()
	checks := map[string]health.Checker{
		"database": nil,
		"model":    health.CheckerFunc(modelProbe(svc)),
	}
	opts := httpapi.Options{
		Logger:       log,
		AllowOrigins: cfg.HTTP.AllowOrigins,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	}
	if cfg.Database.Enabled {
		db, err := store.Open(ctx, cfg.Database.URL)
		if err != nil {
			log.Error("database connection failed", zap.Error(err))
			return err
		}
		defer db.Close()
		svc.WithRecorder(db)
		checks["database"] = db
		opts.Tallies = db
	}

	router := httpapi.NewRouter(svc, health.New(checks), opts)
	server := newServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("server listening",
		zap.String("addr", server.Addr),
		zap.String("version", version.Version),
		zap.Bool("db", cfg.Database.Enabled),
	)
	return waitForShutdown(server, errCh, time.Duration(cfg.HTTP.ShutdownSec)*time.Second, log)
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func waitForShutdown(server *http.Server, errCh <-chan error, timeout time.Duration, log *zap.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
		return err
	case <-stop:
	}

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
