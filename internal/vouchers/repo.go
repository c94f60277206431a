package vouchers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/pagination"
)

// Repository is the voucher side of the inventory store. Every state change is
// a conditional update on the expected prior status; callers inspect the
// returned bool to learn whether they won.
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

// Create inserts a voucher and fills in its assigned ID.
func (r *Repository) Create(ctx context.Context, voucher *models.Voucher) error {
	if voucher == nil {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Create(voucher).Error
}

// SetShortCode derives and stores the short code for a freshly inserted row.
func (r *Repository) SetShortCode(ctx context.Context, id uint64) (string, error) {
	code := ShortCode(id)
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND short_code IS NULL", id).
		Update("short_code", code)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return code, nil
}

// FindInStock returns the oldest in-stock unit of a campaign, or nil when the
// campaign has none.
func (r *Repository) FindInStock(ctx context.Context, campaignID uuid.UUID) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("campaign_id = ? AND status = ?", campaignID, enums.VoucherStatusInStock).
		Order("created_at ASC").
		Order("id ASC").
		Limit(1).
		Take(&voucher).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// ReserveInStock flips an in-stock unit to reserved for owner.
func (r *Repository) ReserveInStock(ctx context.Context, id uint64, ownerID uuid.UUID, hash string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusInStock).
		Updates(map[string]any{
			"status":               enums.VoucherStatusReserved,
			"owner_id":             ownerID,
			"validation_code_hash": hash,
			"purchased_at":         at,
		})
	return res.RowsAffected == 1, res.Error
}

// CountByCampaign counts every materialized unit of a campaign, whatever its status.
func (r *Repository) CountByCampaign(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error
	return count, err
}

// GetByShortCode loads a voucher without its validation hash.
func (r *Repository) GetByShortCode(ctx context.Context, shortCode string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).
		Omit("validation_code_hash").
		Where("short_code = ?", shortCode).
		Take(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

// GetWithSecret loads a voucher including its validation hash. Only the
// redemption and transfer paths use it.
func (r *Repository) GetWithSecret(ctx context.Context, shortCode string) (*models.Voucher, error) {
	var voucher models.Voucher
	if err := r.db.WithContext(ctx).Where("short_code = ?", shortCode).Take(&voucher).Error; err != nil {
		return nil, err
	}
	return &voucher, nil
}

// Release returns a reserved unit to stock and clears everything the
// reservation attached to it.
func (r *Repository) Release(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusReserved).
		Updates(map[string]any{
			"status":               enums.VoucherStatusInStock,
			"owner_id":             nil,
			"validation_code_hash": nil,
			"purchased_at":         nil,
		})
	return res.RowsAffected == 1, res.Error
}

// MarkSold moves a reserved unit to sold.
func (r *Repository) MarkSold(ctx context.Context, id uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ?", id, enums.VoucherStatusReserved).
		Update("status", enums.VoucherStatusSold)
	return res.RowsAffected == 1, res.Error
}

// MarkUsed redeems a reserved or sold unit. A unit already used is left alone.
func (r *Repository) MarkUsed(ctx context.Context, id uint64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status IN ?", id, []enums.VoucherStatus{enums.VoucherStatusReserved, enums.VoucherStatusSold}).
		Updates(map[string]any{
			"status":      enums.VoucherStatusUsed,
			"redeemed_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

// UpdateOwner hands a sold unit from oldOwner to newOwner with a new hash.
func (r *Repository) UpdateOwner(ctx context.Context, id uint64, oldOwner, newOwner uuid.UUID, hash string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("id = ? AND status = ? AND owner_id = ?", id, enums.VoucherStatusSold, oldOwner).
		Updates(map[string]any{
			"owner_id":             newOwner,
			"validation_code_hash": hash,
		})
	return res.RowsAffected == 1, res.Error
}

// ListByCampaign pages through a campaign's units in id order, optionally
// filtered by status.
func (r *Repository) ListByCampaign(ctx context.Context, campaignID uuid.UUID, status *enums.VoucherStatus, params pagination.Params) (pagination.Page[models.Voucher], error) {
	query := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	return r.page(query, params)
}

// ListByOwner pages through a customer's units in id order.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (pagination.Page[models.Voucher], error) {
	return r.page(r.db.WithContext(ctx).Where("owner_id = ?", ownerID), params)
}

func (r *Repository) page(query *gorm.DB, params pagination.Params) (pagination.Page[models.Voucher], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Voucher]{}, err
	}
	if cursor != nil {
		query = query.Where("id > ?", cursor.AfterID)
	}

	var rows []models.Voucher
	if err := query.
		Omit("validation_code_hash").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Voucher]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(v models.Voucher) uint64 { return v.ID }), nil
}

// ListReservedBefore returns short codes of units reserved before cutoff.
func (r *Repository) ListReservedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("status = ? AND purchased_at < ? AND short_code IS NOT NULL", enums.VoucherStatusReserved, cutoff).
		Order("purchased_at ASC").
		Limit(limit).
		Pluck("short_code", &codes).Error
	return codes, err
}

func (r *Repository) CreatePaymentRequest(ctx context.Context, req *models.PaymentRequest) error {
	if req == nil || req.ID == "" || req.ShortCode == "" {
		return gorm.ErrInvalidValue
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *Repository) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	var req models.PaymentRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ConfirmPaymentRequest stamps confirmed_at once. It reports false when the
// request was already confirmed.
func (r *Repository) ConfirmPaymentRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentRequest{}).
		Where("id = ? AND confirmed_at IS NULL", id).
		Update("confirmed_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) DeletePaymentRequests(ctx context.Context, shortCode string) error {
	return r.db.WithContext(ctx).
		Where("short_code = ?", shortCode).
		Delete(&models.PaymentRequest{}).Error
}
