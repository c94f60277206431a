package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// Voucher is one sellable unit of a campaign. ShortCode is derived from ID and
// stays NULL for the instant between insert and code assignment.
type Voucher struct {
	ID                 uint64              `gorm:"column:id;primaryKey;autoIncrement"`
	ShortCode          *string             `gorm:"column:short_code;default:null;uniqueIndex"`
	CampaignID         uuid.UUID           `gorm:"column:campaign_id;type:uuid;not null;index"`
	Status             enums.VoucherStatus `gorm:"column:status;type:voucher_status_enum;not null"`
	OwnerID            *uuid.UUID          `gorm:"column:owner_id;type:uuid"`
	ValidationCodeHash *string             `gorm:"column:validation_code_hash"`
	PurchasedAt        *time.Time          `gorm:"column:purchased_at"`
	RedeemedAt         *time.Time          `gorm:"column:redeemed_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// Code returns the short code or an empty string when not yet assigned.
func (v Voucher) Code() string {
	if v.ShortCode == nil {
		return ""
	}
	return *v.ShortCode
}
