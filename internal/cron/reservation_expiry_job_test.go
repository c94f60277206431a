package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

type fakeReservedLister struct {
	codes  []string
	err    error
	cutoff time.Time
	limit  int
}

func (f *fakeReservedLister) ListReservedBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.codes, f.err
}

type fakeReleaser struct {
	outcomes map[string]enums.ReleaseOutcome
	errs     map[string]error
	calls    []string
}

func (f *fakeReleaser) Release(_ context.Context, code string) (enums.ReleaseOutcome, error) {
	f.calls = append(f.calls, code)
	if err := f.errs[code]; err != nil {
		return "", err
	}
	if outcome, ok := f.outcomes[code]; ok {
		return outcome, nil
	}
	return enums.ReleaseOutcomeReleased, nil
}

func newExpiryJob(t *testing.T, lister *fakeReservedLister, releaser *fakeReleaser) *reservationExpiryJob {
	t.Helper()
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:      logger.Nop(),
		Vouchers:    lister,
		Compensator: releaser,
		Hold:        15 * time.Minute,
		BatchSize:   50,
	})
	require.NoError(t, err)
	return job.(*reservationExpiryJob)
}

func TestReservationExpiryReleasesEveryCandidate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	lister := &fakeReservedLister{codes: []string{"AAAAAAAAAAAAC", "AAAAAAAAAAAAE", "AAAAAAAAAAAAG"}}
	releaser := &fakeReleaser{outcomes: map[string]enums.ReleaseOutcome{
		"AAAAAAAAAAAAE": enums.ReleaseOutcomePending,
		"AAAAAAAAAAAAG": enums.ReleaseOutcomeAlreadyResolved,
	}}
	job := newExpiryJob(t, lister, releaser)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, lister.cutoff.Equal(now.Add(-15*time.Minute)))
	assert.Equal(t, 50, lister.limit)
	assert.Equal(t, lister.codes, releaser.calls)
}

func TestReservationExpiryCombinesFailures(t *testing.T) {
	lister := &fakeReservedLister{codes: []string{"AAAAAAAAAAAAC", "AAAAAAAAAAAAE", "AAAAAAAAAAAAG"}}
	releaser := &fakeReleaser{errs: map[string]error{
		"AAAAAAAAAAAAC": errors.New("db down"),
		"AAAAAAAAAAAAG": errors.New("lock store down"),
	}}
	job := newExpiryJob(t, lister, releaser)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Len(t, releaser.calls, 3)
}

func TestReservationExpiryListFailure(t *testing.T) {
	job := newExpiryJob(t, &fakeReservedLister{err: errors.New("boom")}, &fakeReleaser{})
	require.Error(t, job.Run(context.Background()))
}

func TestReservationExpiryStopsOnCancelledContext(t *testing.T) {
	lister := &fakeReservedLister{codes: []string{"AAAAAAAAAAAAC", "AAAAAAAAAAAAE"}}
	releaser := &fakeReleaser{}
	job := newExpiryJob(t, lister, releaser)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := job.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, releaser.calls)
}

func TestNewReservationExpiryJobValidates(t *testing.T) {
	_, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}

type fakeDeadLetters struct {
	rows  []models.ReleaseDeadLetter
	err   error
	since []time.Time
}

func (f *fakeDeadLetters) ListSince(_ context.Context, since time.Time, _ int) ([]models.ReleaseDeadLetter, error) {
	f.since = append(f.since, since)
	return f.rows, f.err
}

func TestReservationExpiryReportsDeadLetters(t *testing.T) {
	buf := &bytes.Buffer{}
	deadLetters := &fakeDeadLetters{rows: []models.ReleaseDeadLetter{{ShortCode: "AAAAAAAAAAAAC", Attempts: 20}}}
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: buf}),
		Vouchers:    &fakeReservedLister{},
		Compensator: &fakeReleaser{},
		DeadLetters: deadLetters,
		Hold:        10 * time.Minute,
	})
	require.NoError(t, err)
	expiry := job.(*reservationExpiryJob)

	first := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	expiry.now = func() time.Time { return first }
	require.NoError(t, expiry.Run(context.Background()))

	second := first.Add(time.Minute)
	expiry.now = func() time.Time { return second }
	require.NoError(t, expiry.Run(context.Background()))

	require.Len(t, deadLetters.since, 2)
	assert.True(t, deadLetters.since[0].Equal(first.Add(-10*time.Minute)))
	assert.True(t, deadLetters.since[1].Equal(first))
	assert.Contains(t, buf.String(), "release dead letters need manual resolution")
	assert.Contains(t, buf.String(), "AAAAAAAAAAAAC")
}

func TestReservationExpiryDeadLetterListFailure(t *testing.T) {
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:      logger.Nop(),
		Vouchers:    &fakeReservedLister{},
		Compensator: &fakeReleaser{},
		DeadLetters: &fakeDeadLetters{err: errors.New("db down")},
	})
	require.NoError(t, err)
	require.Error(t, job.Run(context.Background()))
}
