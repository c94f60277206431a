// Package bootstrap holds the startup steps shared by every binary.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const metricsShutdownTimeout = 5 * time.Second

// Load reads an optional .env file and the environment, then returns a
// logger configured for service. Failures are logged before returning.
func Load(service string) (*config.Config, *logger.Logger, error) {
	boot := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		boot.Info(context.Background(), ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Error(context.Background(), "config.load_failed", err)
		return nil, nil, err
	}
	cfg.Service.Kind = service

	return cfg, logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	}), nil
}

// ServeMetrics exposes the default prometheus registry on addr for workers
// that have no HTTP API of their own. The returned func stops the listener.
func ServeMetrics(ctx context.Context, addr string, logg *logger.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
