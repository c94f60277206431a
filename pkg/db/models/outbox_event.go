package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// OutboxEvent is written in the same transaction as the state change it
// describes. AggregateID is the voucher short code; Payload holds an
// outbox.PayloadEnvelope.
//
// A row is pending while PublishedAt is nil and AttemptCount is below the
// relay's ceiling. Dead-lettered rows have AttemptCount pinned at the ceiling.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null;uniqueIndex:ux_outbox_events_event_aggregate,priority:1"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null;uniqueIndex:ux_outbox_events_event_aggregate,priority:2"`
	AggregateID   string                    `gorm:"column:aggregate_id;not null;uniqueIndex:ux_outbox_events_event_aggregate,priority:3"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string { return "outbox_events" }
