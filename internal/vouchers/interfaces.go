package vouchers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/internal/payments"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// locker is satisfied by *locks.Coordinator.
type locker interface {
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

type paymentGateway interface {
	GeneratePayment(ctx context.Context, input payments.PaymentInput) (payments.PaymentRequest, error)
}

type releaser interface {
	Release(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error)
}

// releaseScheduler hands a contended release to background retries.
type releaseScheduler interface {
	Schedule(shortCode string) bool
}

// eventEmitter queues a sold fact at most once per voucher, so a redelivered
// payment webhook cannot publish a second sale.
type eventEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}
