package releases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
)

// DeadLetterRepository persists releases the supervisor gave up on so an
// operator can resolve them by hand.
type DeadLetterRepository struct {
	db *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Record(ctx context.Context, shortCode string, attempts int, lastErr error) error {
	row := models.ReleaseDeadLetter{
		ID:        uuid.New(),
		ShortCode: shortCode,
		Attempts:  attempts,
		FailedAt:  time.Now().UTC(),
	}
	if lastErr != nil {
		msg := lastErr.Error()
		row.LastError = &msg
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// ListSince returns dead letters written at or after since, newest first.
func (r *DeadLetterRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]models.ReleaseDeadLetter, error) {
	var rows []models.ReleaseDeadLetter
	err := r.db.WithContext(ctx).
		Where("failed_at >= ?", since).
		Order("failed_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
