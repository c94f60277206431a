package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// Campaign is a partner's batch of sellable vouchers.
type Campaign struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID           uuid.UUID           `gorm:"column:partner_id;type:uuid;not null"`
	Name                string              `gorm:"column:name;not null"`
	State               enums.CampaignState `gorm:"column:state;type:campaign_state_enum;not null"`
	FromDate            *time.Time          `gorm:"column:from_date"`
	ToDate              *time.Time          `gorm:"column:to_date"`
	VouchersTotalCount  int                 `gorm:"column:vouchers_total_count;not null"`
	BoughtVouchersCount int                 `gorm:"column:bought_vouchers_count;not null;default:0"`
	Price               decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Currency            enums.Currency      `gorm:"column:currency;not null"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// ActiveAt reports whether the campaign is published and inside its window.
// Open bounds are unbounded.
func (c Campaign) ActiveAt(now time.Time) bool {
	if c.State != enums.CampaignStatePublished {
		return false
	}
	if c.FromDate != nil && now.Before(*c.FromDate) {
		return false
	}
	if c.ToDate != nil && now.After(*c.ToDate) {
		return false
	}
	return true
}

// SoldOut reports whether the allocated counter reached capacity.
func (c Campaign) SoldOut() bool {
	return c.BoughtVouchersCount >= c.VouchersTotalCount
}
