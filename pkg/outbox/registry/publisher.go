package registry

import (
	"fmt"

	"github.com/angelmondragon/voucherz-backend/pkg/config"
	"github.com/angelmondragon/voucherz-backend/pkg/db/models"
	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox"
	"github.com/angelmondragon/voucherz-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate and topic. Payload
// schemas are versioned separately.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries  map[enums.OutboxEventType]EventDescriptor
	schemas  schemas
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.SalesTopic == "" {
		return nil, fmt.Errorf("sales topic is required")
	}

	reg := &EventRegistry{
		entries:  make(map[enums.OutboxEventType]EventDescriptor),
		schemas:  schemas{},
	}
	reg.entries[enums.EventVoucherSold] = EventDescriptor{
		EventType:     enums.EventVoucherSold,
		AggregateType: enums.AggregateVoucher,
		Topic:         cfg.SalesTopic,
	}
	reg.schemas.add(enums.EventVoucherSold, 1, typed[payloads.VoucherSoldEvent]())

	for eventType := range reg.entries {
		if reg.schemas.latest(eventType) == 0 {
			return nil, fmt.Errorf("event %s has no payload schema", eventType)
		}
	}
	return reg, nil
}

// Topics lists every topic the registry can route to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	topics := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	envelope, err := outbox.ParseEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}

	payload, err := r.schemas.decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
