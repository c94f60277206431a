package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const (
	defaultReservationHold  = 30 * time.Minute
	defaultExpiryBatchSize  = 200
	reservationExpiryJobKey = "reservation-expiry"
)

type reservedVoucherLister interface {
	ListReservedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type voucherReleaser interface {
	Release(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error)
}

type deadLetterLister interface {
	ListSince(ctx context.Context, since time.Time, limit int) ([]models.ReleaseDeadLetter, error)
}

type ReservationExpiryJobParams struct {
	Logger      *logger.Logger
	Vouchers    reservedVoucherLister
	Compensator voucherReleaser
	// DeadLetters is optional. When set, releases the api gave up on since
	// the previous sweep are reported at warn level.
	DeadLetters deadLetterLister
	Hold        time.Duration
	BatchSize   int
}

// NewReservationExpiryJob builds the job that returns reservations older than
// the hold period to stock. Units whose lock is busy are picked up again on the
// next cycle.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Vouchers == nil {
		return nil, fmt.Errorf("voucher repository required")
	}
	if params.Compensator == nil {
		return nil, fmt.Errorf("compensator required")
	}
	hold := params.Hold
	if hold <= 0 {
		hold = defaultReservationHold
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &reservationExpiryJob{
		logg:        params.Logger,
		vouchers:    params.Vouchers,
		compensator: params.Compensator,
		deadLetters: params.DeadLetters,
		hold:        hold,
		batch:       batch,
		now:         time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg        *logger.Logger
	vouchers    reservedVoucherLister
	compensator voucherReleaser
	deadLetters deadLetterLister
	hold        time.Duration
	batch       int
	now         func() time.Time
	lastSweep   time.Time
}

func (j *reservationExpiryJob) Name() string { return reservationExpiryJobKey }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	started := j.now().UTC()
	cutoff := started.Add(-j.hold)
	codes, err := j.vouchers.ListReservedBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list expired reservations: %w", err)
	}

	counts := map[enums.ReleaseOutcome]int{}
	var errs error
	for _, code := range codes {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		outcome, err := j.compensator.Release(ctx, code)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release %s: %w", code, err))
			continue
		}
		counts[outcome]++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"candidates":       len(codes),
		"released":         counts[enums.ReleaseOutcomeReleased],
		"already_resolved": counts[enums.ReleaseOutcomeAlreadyResolved],
		"pending":          counts[enums.ReleaseOutcomePending],
		"failed":           len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")

	if err := j.reportDeadLetters(ctx, started); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (j *reservationExpiryJob) reportDeadLetters(ctx context.Context, started time.Time) error {
	if j.deadLetters == nil {
		return nil
	}
	since := j.lastSweep
	if since.IsZero() {
		since = started.Add(-j.hold)
	}
	rows, err := j.deadLetters.ListSince(ctx, since, j.batch)
	if err != nil {
		return fmt.Errorf("list release dead letters: %w", err)
	}
	j.lastSweep = started
	if len(rows) == 0 {
		return nil
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.ShortCode)
	}
	j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
		"since":       since,
		"count":       len(rows),
		"short_codes": codes,
	}), "release dead letters need manual resolution")
	return nil
}
