package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/voucherz-backend/internal/campaigns"
	"github.com/angelmondragon/voucherz-backend/internal/cron"
	"github.com/angelmondragon/voucherz-backend/internal/locks"
	"github.com/angelmondragon/voucherz-backend/internal/releases"
	"github.com/angelmondragon/voucherz-backend/internal/vouchers"
	"github.com/angelmondragon/voucherz-backend/pkg/bootstrap"
	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
	"github.com/angelmondragon/voucherz-backend/pkg/migrate"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
	"github.com/angelmondragon/voucherz-backend/pkg/redis"
)

func main() {
	cfg, logg, err := bootstrap.Load("cron-worker")
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker stopped")
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

	service, err := newService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	stopMetrics := bootstrap.ServeMetrics(ctx, ":"+cfg.App.Port, logg)
	defer stopMetrics()

	logg.Info(logg.WithField(ctx, "interval", cfg.Cron.Interval.String()), "cron worker started")
	return service.Run(ctx)
}

func newService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	cronLocks, err := locks.NewCoordinator(redisClient, locks.ScopeCron)
	if err != nil {
		return nil, fmt.Errorf("cron locks: %w", err)
	}
	leader, err := cron.NewLeaderLock(cronLocks, leaderName(cfg.App.Env), 0)
	if err != nil {
		return nil, fmt.Errorf("leader lock: %w", err)
	}
	voucherLocks, err := locks.NewCoordinator(redisClient, locks.ScopeVoucher)
	if err != nil {
		return nil, fmt.Errorf("voucher locks: %w", err)
	}

	voucherRepo := vouchers.NewRepository(dbClient.DB())
	compensator, err := vouchers.NewCompensator(vouchers.CompensatorParams{
		DB:         dbClient,
		Repository: voucherRepo,
		Campaigns:  campaigns.NewRepository(dbClient.DB()),
		Locks:      voucherLocks,
		LockTTL:    cfg.Vouchers.LockTimeout,
		Logger:     logg,
		Metrics:    metrics.NewVoucherMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return nil, fmt.Errorf("compensator: %w", err)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:      logg,
		Vouchers:    voucherRepo,
		Compensator: compensator,
		DeadLetters: releases.NewDeadLetterRepository(dbClient.DB()),
		Hold:        cfg.Vouchers.ReservationHold,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation expiry job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewRepository(dbClient.DB()),
		RetentionDays:    cfg.Outbox.RetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(expiryJob, retentionJob),
		Lock:     leader,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
}

// leaderName scopes the leader lock per environment so staging and prod
// sharing a Redis do not block each other.
func leaderName(env string) string {
	if env == "" {
		env = "local"
	}
	return "leader:" + env
}
