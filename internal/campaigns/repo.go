package campaigns

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
)

// ErrCapacityReached is returned when the bought counter is already at the
// campaign's total.
var ErrCapacityReached = errors.New("campaign capacity reached")

// Repository reads campaigns and maintains their allocation counter. Campaign
// authoring lives elsewhere.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// GetByID returns gorm.ErrRecordNotFound when the campaign does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// IncrementBought counts one more allocated unit, refusing to pass capacity.
func (r *Repository) IncrementBought(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND bought_vouchers_count < vouchers_total_count", id).
		Update("bought_vouchers_count", gorm.Expr("bought_vouchers_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrCapacityReached
	}
	return nil
}

// DecrementBought returns one unit to the sellable pool. It never goes below zero.
func (r *Repository) DecrementBought(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("id = ? AND bought_vouchers_count > 0", id).
		Update("bought_vouchers_count", gorm.Expr("bought_vouchers_count - 1")).
		Error
}
