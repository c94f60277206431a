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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	webhookcontrollers "github.com/angelmondragon/voucherz-backend/api/controllers/webhooks"
	"github.com/angelmondragon/voucherz-backend/api/routes"
	"github.com/angelmondragon/voucherz-backend/internal/campaigns"
	"github.com/angelmondragon/voucherz-backend/internal/locks"
	"github.com/angelmondragon/voucherz-backend/internal/payments"
	"github.com/angelmondragon/voucherz-backend/internal/releases"
	"github.com/angelmondragon/voucherz-backend/internal/vouchers"
	squarewebhook "github.com/angelmondragon/voucherz-backend/internal/webhooks/square"
	"github.com/angelmondragon/voucherz-backend/pkg/bootstrap"
	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
	"github.com/angelmondragon/voucherz-backend/pkg/migrate"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/voucherz-backend/pkg/redis"
	"github.com/angelmondragon/voucherz-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, logg, err := bootstrap.Load("api")
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return fmt.Errorf("square: %w", err)
	}

	voucherMetrics := metrics.NewVoucherMetrics(prometheus.DefaultRegisterer)
	voucherService, supervisor, err := newVoucherService(cfg, logg, dbClient, redisClient, squareClient, voucherMetrics)
	if err != nil {
		return err
	}

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Sales:     voucherService,
		LostSales: squarewebhook.NewLostSaleRepository(dbClient.DB()),
		Metrics:   voucherMetrics,
		Logger:    logg,
	})
	if err != nil {
		return fmt.Errorf("square webhook service: %w", err)
	}
	dedup, err := idempotency.NewManager(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("webhook dedup: %w", err)
	}

	server := &http.Server{
		Addr: listenAddr(cfg),
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Vouchers:      voucherService,
			SquareWebhook: webhookService,
			SquareSigning: webhookcontrollers.SquareSigning{
				SignatureKey:    squareClient.SignatureKey(),
				NotificationURL: squareClient.NotificationURL(),
			},
			WebhookDedup: dedup,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logg.Info(logg.WithField(ctx, "addr", server.Addr), "api listening")

	var runErr error
	select {
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	// releases still queued at shutdown are recovered by the reservation expiry sweep
	return multierr.Combine(
		runErr,
		server.Shutdown(shutdownCtx),
		supervisor.Shutdown(shutdownCtx),
	)
}

func newVoucherService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, squareClient *square.Client, voucherMetrics *metrics.VoucherMetrics) (*vouchers.Service, *releases.Supervisor, error) {
	campaignLocks, err := locks.NewCoordinator(redisClient, locks.ScopeCampaign)
	if err != nil {
		return nil, nil, fmt.Errorf("campaign locks: %w", err)
	}
	voucherLocks, err := locks.NewCoordinator(redisClient, locks.ScopeVoucher)
	if err != nil {
		return nil, nil, fmt.Errorf("voucher locks: %w", err)
	}

	locations, err := cfg.Square.Locations()
	if err != nil {
		return nil, nil, err
	}
	gateway, err := payments.NewSquareGateway(squareClient, locations, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("payment gateway: %w", err)
	}

	voucherRepo := vouchers.NewRepository(dbClient.DB())
	campaignRepo := campaigns.NewRepository(dbClient.DB())

	compensator, err := vouchers.NewCompensator(vouchers.CompensatorParams{
		DB:         dbClient,
		Repository: voucherRepo,
		Campaigns:  campaignRepo,
		Locks:      voucherLocks,
		LockTTL:    cfg.Vouchers.LockTimeout,
		Logger:     logg,
		Metrics:    voucherMetrics,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("compensator: %w", err)
	}

	supervisor, err := releases.NewSupervisor(releases.SupervisorParams{
		Logger:      logg,
		Compensator: compensator,
		DeadLetters: releases.NewDeadLetterRepository(dbClient.DB()),
		Metrics:     voucherMetrics,
		Interval:    cfg.Vouchers.LockTimeout,
		MaxAttempts: cfg.Vouchers.ReleaseMaxAttempts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("release supervisor: %w", err)
	}

	service, err := vouchers.NewService(vouchers.ServiceParams{
		DB:              dbClient,
		Repository:      voucherRepo,
		Campaigns:       campaignRepo,
		CampaignLocks:   campaignLocks,
		Gateway:         gateway,
		Compensator:     compensator,
		Scheduler:       supervisor,
		Outbox:          outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:          logg,
		Metrics:         voucherMetrics,
		LockTimeout:     cfg.Vouchers.LockTimeout,
		ReserveAttempts: cfg.Vouchers.ReserveAttempts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("voucher service: %w", err)
	}
	return service, supervisor, nil
}

// listenAddr honours a platform-assigned PORT over the configured one.
func listenAddr(cfg *config.Config) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + cfg.App.Port
}
