package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies the customer whose action produced the event.
type ActorRef struct {
	CustomerID uuid.UUID `json:"customerId"`
	Role       string    `json:"role,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds. Data is decoded by
// the registry according to (event type, Version).
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

var errEmptyEnvelopeData = errors.New("envelope data is empty")

func newEnvelope(event DomainEvent, data json.RawMessage) PayloadEnvelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	version := event.Version
	if version <= 0 {
		version = 1
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
}

// ParseEnvelope decodes a stored payload and rejects envelopes without data
// or without a usable version.
func ParseEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version <= 0 {
		return PayloadEnvelope{}, fmt.Errorf("envelope version %d", envelope.Version)
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return PayloadEnvelope{}, errEmptyEnvelopeData
	}
	return envelope, nil
}
