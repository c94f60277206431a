package vouchers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// Reservation is what a successful Reserve hands back. ValidationCode is the
// only time the plaintext code leaves the service.
type Reservation struct {
	ShortCode        string `json:"short_code"`
	PaymentRequestID string `json:"payment_request_id"`
	PaymentURL       string `json:"payment_url"`
	ValidationCode   string `json:"validation_code"`
}

// VoucherView is the public projection of a voucher; it never carries the hash.
// PartnerID is only filled by Get.
type VoucherView struct {
	ShortCode   string              `json:"short_code"`
	CampaignID  uuid.UUID           `json:"campaign_id"`
	PartnerID   uuid.UUID           `json:"partner_id,omitempty"`
	Status      enums.VoucherStatus `json:"status"`
	OwnerID     *uuid.UUID          `json:"owner_id,omitempty"`
	PurchasedAt *time.Time          `json:"purchased_at,omitempty"`
	RedeemedAt  *time.Time          `json:"redeemed_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func toView(v models.Voucher) VoucherView {
	return VoucherView{
		ShortCode:   v.Code(),
		CampaignID:  v.CampaignID,
		Status:      v.Status,
		OwnerID:     v.OwnerID,
		PurchasedAt: v.PurchasedAt,
		RedeemedAt:  v.RedeemedAt,
		CreatedAt:   v.CreatedAt,
	}
}
