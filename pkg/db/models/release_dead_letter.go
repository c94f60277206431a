package models

import (
	"time"

	"github.com/google/uuid"
)

// ReleaseDeadLetter records a reserved voucher the release supervisor gave up on.
type ReleaseDeadLetter struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ShortCode string    `gorm:"column:short_code;not null"`
	Attempts  int       `gorm:"column:attempts;not null"`
	LastError *string   `gorm:"column:last_error"`
	FailedAt  time.Time `gorm:"column:failed_at;autoCreateTime"`
}
