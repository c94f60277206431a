package squarewebhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
)

// LostSaleRepository keeps paid orders that no longer have a voucher behind
// them. Recording the same payment request twice is a no-op.
type LostSaleRepository struct {
	db *gorm.DB
}

func NewLostSaleRepository(db *gorm.DB) *LostSaleRepository {
	return &LostSaleRepository{db: db}
}

func (r *LostSaleRepository) Record(ctx context.Context, paymentRequestID, paymentID, eventID string) error {
	row := models.LostSale{
		ID:               uuid.New(),
		PaymentRequestID: paymentRequestID,
		SquarePaymentID:  paymentID,
		SquareEventID:    eventID,
		DetectedAt:       time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Create(&row).Error
	if dbpkg.IsUniqueViolation(err, "") {
		return nil
	}
	return err
}

