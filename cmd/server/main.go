package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/app"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/config"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n") //nolint:errcheck
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n") //nolint:errcheck
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise", zap.Error(err))
	}
	defer a.Close()

	// A failed scan is not fatal: the admin API can trigger a reload later.
	if err := a.Manager.Load(ctx); err != nil {
		logger.Error("initial plugin load failed", zap.Error(err))
	} else {
		report := a.Manager.LastReport()
		logger.Info("plugins loaded",
			zap.Strings("activated", report.Activated()),
			zap.Int("failed", len(report.Failed())))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Server.Port,
		Handler:        a.Handler(),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		ErrorLog:       zap.NewStdLog(logger),
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("plugins_root", cfg.Plugins.Root))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server stopped")
}
