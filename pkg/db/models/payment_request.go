package models

import "time"

// PaymentRequest links a gateway order id to the reserved voucher it pays for.
type PaymentRequest struct {
	ID          string     `gorm:"column:id;primaryKey"`
	ShortCode   string     `gorm:"column:short_code;not null;index"`
	PaymentURL  string     `gorm:"column:payment_url;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
}
