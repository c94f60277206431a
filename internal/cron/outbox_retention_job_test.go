package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

type fakeOutboxPruner struct {
	cutoff   time.Time
	attempts int
	calls    int
	err      error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.attempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 7, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, repo *fakeOutboxPruner, params OutboxRetentionJobParams) *outboxRetentionJob {
	t.Helper()
	params.Logger = logger.Nop()
	params.DB = passthroughTx{}
	params.Repository = repo
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionJobUsesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.calls)
	assert.True(t, repo.cutoff.Equal(now.Add(-30*24*time.Hour)))
	assert.Equal(t, defaultOutboxTerminalAttempts, repo.attempts)
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestOutboxRetentionJobHonoursConfig(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, OutboxRetentionJobParams{RetentionDays: 7, TerminalAttempts: 3})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, repo.cutoff.Equal(now.Add(-7*24*time.Hour)))
	assert.Equal(t, 3, repo.attempts)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job := newRetentionJob(t, &fakeOutboxPruner{err: errors.New("boom")}, OutboxRetentionJobParams{})
	require.Error(t, job.Run(context.Background()))
}
