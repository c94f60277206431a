package vouchers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/internal/campaigns"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherz-backend/pkg/errors"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
)

type CompensatorParams struct {
	DB         txRunner
	Repository *Repository
	Campaigns  *campaigns.Repository
	Locks      locker
	LockTTL    time.Duration
	Logger     *logger.Logger
	Metrics    *metrics.VoucherMetrics
}

// Compensator returns reserved vouchers to stock under the per-voucher lock.
type Compensator struct {
	db        txRunner
	repo      *Repository
	campaigns *campaigns.Repository
	locks     locker
	ttl       time.Duration
	logg      *logger.Logger
	metrics   *metrics.VoucherMetrics
}

func NewCompensator(params CompensatorParams) (*Compensator, error) {
	switch {
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher repository required")
	case params.Campaigns == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "campaign repository required")
	case params.Locks == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "voucher locks required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	case params.LockTTL <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "lock ttl must be positive")
	}
	return &Compensator{
		db:        params.DB,
		repo:      params.Repository,
		campaigns: params.Campaigns,
		locks:     params.Locks,
		ttl:       params.LockTTL,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

// Release makes one attempt to put shortCode back in stock. It never waits for
// the lock: a busy lock yields ReleaseOutcomePending and the caller decides
// whether to retry.
func (c *Compensator) Release(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error) {
	ctx = c.logg.WithShortCode(ctx, shortCode)

	acquired, err := c.locks.TryAcquire(ctx, shortCode, shortCode, c.ttl)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire voucher lock")
	}
	if !acquired {
		c.metrics.IncLockContention("voucher")
		c.metrics.IncRelease(enums.ReleaseOutcomePending.String())
		return enums.ReleaseOutcomePending, nil
	}
	defer func() {
		if err := c.locks.Release(context.WithoutCancel(ctx), shortCode, shortCode); err != nil {
			c.logg.Error(ctx, "failed to release voucher lock", err)
		}
	}()

	outcome, err := c.releaseLocked(ctx, shortCode)
	if err != nil {
		return "", err
	}
	c.metrics.IncRelease(outcome.String())
	if outcome == enums.ReleaseOutcomeReleased {
		c.logg.Info(ctx, "voucher returned to stock")
	}
	return outcome, nil
}

func (c *Compensator) releaseLocked(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error) {
	voucher, err := c.repo.GetByShortCode(ctx, shortCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return enums.ReleaseOutcomeAlreadyResolved, nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load voucher")
	}
	if voucher.Status != enums.VoucherStatusReserved {
		return enums.ReleaseOutcomeAlreadyResolved, nil
	}

	outcome := enums.ReleaseOutcomeAlreadyResolved
	err = c.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := c.repo.WithTx(tx)
		released, err := repo.Release(ctx, voucher.ID)
		if err != nil {
			return err
		}
		if !released {
			return nil
		}
		if err := repo.DeletePaymentRequests(ctx, shortCode); err != nil {
			return err
		}
		if err := c.campaigns.WithTx(tx).DecrementBought(ctx, voucher.CampaignID); err != nil {
			return err
		}
		outcome = enums.ReleaseOutcomeReleased
		return nil
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release voucher")
	}
	return outcome, nil
}
