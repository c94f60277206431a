package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// VoucherSoldEvent is the sold fact. Amount and currency are the campaign
// values at confirmation time.
type VoucherSoldEvent struct {
	ShortCode        string          `json:"short_code" validate:"required"`
	CampaignID       uuid.UUID       `json:"campaign_id" validate:"required"`
	PartnerID        uuid.UUID       `json:"partner_id" validate:"required"`
	CustomerID       uuid.UUID       `json:"customer_id" validate:"required"`
	PaymentRequestID string          `json:"payment_request_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         enums.Currency  `json:"currency" validate:"required"`
	SoldAt           time.Time       `json:"sold_at" validate:"required"`
}
