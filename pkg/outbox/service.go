package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/voucherz-backend/pkg/db"
	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
)

const uniqueEventAggregateIndex = "ux_outbox_events_event_aggregate"

// DomainEvent is a fact to be published once the surrounding transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Service writes domain events into outbox_events inside the caller's
// transaction. Publishing is cmd/outbox-publisher's job.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, eventID, err := toRow(event)
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       eventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}

// EmitIfNotExists is Emit guarded by the (event_type, aggregate_type,
// aggregate_id) uniqueness of outbox_events. A duplicate is not an error.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, uniqueEventAggregateIndex) {
		return nil
	}
	return err
}

func toRow(event DomainEvent) (models.OutboxEvent, string, error) {
	switch {
	case event.AggregateID == "":
		return models.OutboxEvent{}, "", errors.New("aggregate id required")
	case !event.EventType.IsValid():
		return models.OutboxEvent{}, "", fmt.Errorf("unknown event type %q", event.EventType)
	case !event.AggregateType.IsValid():
		return models.OutboxEvent{}, "", fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	envelope := newEnvelope(event, data)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, "", fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope.EventID, nil
}
