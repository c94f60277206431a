package outbox

import (
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
)

// maxDLQErrorBytes bounds outbox_dlq.error_message.
const maxDLQErrorBytes = 1024

// DLQRepository stores outbox rows the relay gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx writes entry in the relay's batch transaction so the dead letter
// and the terminal mark on outbox_events commit together.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		clipped := clipUTF8(*entry.ErrorMessage, maxDLQErrorBytes)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

func clipUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
