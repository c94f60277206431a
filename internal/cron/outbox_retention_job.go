package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	// rows that never published are kept until the publisher gave up on them
	defaultOutboxTerminalAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       outboxPruner
	RetentionDays    int
	TerminalAttempts int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repository,
		keep:     time.Duration(params.RetentionDays) * 24 * time.Hour,
		terminal: params.TerminalAttempts,
		now:      time.Now,
	}
	if params.RetentionDays <= 0 {
		job.keep = defaultOutboxRetentionDays * 24 * time.Hour
	}
	if job.terminal <= 0 {
		job.terminal = defaultOutboxTerminalAttempts
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg     *logger.Logger
	db       txRunner
	repo     outboxPruner
	keep     time.Duration
	terminal int
	now      func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.terminal)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox pruned")
	return nil
}
