package models

import (
	"time"

	"github.com/google/uuid"
)

// LostSale is a completed Square payment whose reservation was already
// released when the notification arrived. Each needs a manual refund or
// re-issue.
type LostSale struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentRequestID string    `gorm:"column:payment_request_id;not null;uniqueIndex"`
	SquarePaymentID  string    `gorm:"column:square_payment_id;not null"`
	SquareEventID    string    `gorm:"column:square_event_id;not null"`
	DetectedAt       time.Time `gorm:"column:detected_at;autoCreateTime"`
}
