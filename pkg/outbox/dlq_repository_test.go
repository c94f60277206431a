package outbox

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

func TestDLQInsertClipsErrorMessage(t *testing.T) {
	db := setupOutboxTestDB(t)
	require.NoError(t, db.Exec(`
CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`).Error)

	msg := strings.Repeat("é", maxDLQErrorBytes)
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     enums.EventVoucherSold,
		AggregateType: enums.AggregateVoucher,
		AggregateID:   "AAAAAAAAAAAAC",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
		FailedAt:      time.Now().UTC(),
	}
	require.NoError(t, NewDLQRepository(db).InsertTx(db, entry))

	var stored models.OutboxDLQ
	require.NoError(t, db.First(&stored, "event_id = ?", entry.EventID).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxDLQErrorBytes)
	assert.Equal(t, maxDLQErrorBytes/2, len([]rune(*stored.ErrorMessage)))
}

func TestDLQInsertRequiresTransaction(t *testing.T) {
	require.Error(t, NewDLQRepository(nil).InsertTx(nil, models.OutboxDLQ{}))
}
