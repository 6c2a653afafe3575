package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bautibadino/wp-api/internal/api"
	"github.com/bautibadino/wp-api/internal/client"
	"github.com/bautibadino/wp-api/internal/config"
	"github.com/bautibadino/wp-api/internal/realtime"
	"github.com/bautibadino/wp-api/internal/session"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	hub := realtime.NewHub()
	ctrl := session.New(client.New, client.Config{
		Driver:      cfg.ClientDriver,
		BrowserPath: cfg.BrowserPath,
		SessionDir:  cfg.SessionDir,
		Headless:    cfg.Headless,
	}, session.Config{
		SendTimeout:           cfg.SendTimeout,
		LaunchRetryDelay:      cfg.LaunchRetryDelay,
		AuthRetryDelay:        cfg.AuthRetryDelay,
		RestartDelay:          cfg.RestartDelay,
		PairingTTL:            cfg.PairingTTL,
		ReconnectOnDisconnect: cfg.ReconnectOnDisconnect,
		BreakerThreshold:      cfg.BreakerThreshold,
		BreakerCooldown:       cfg.BreakerCooldown,
	}, logger)
	ctrl.SetPhaseListener(hub)

	handler := api.NewHandler(ctrl, hub, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	// Bring the session up immediately; pairing progress is observable on
	// /api/qr and /api/events while the client boots.
	ctrl.Launch()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr, "driver", cfg.ClientDriver)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	ctrl.Shutdown(ctx)
	logger.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
