package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
)

// ErrNoSchema is returned for an event type and version pair nobody registered.
var ErrNoSchema = errors.New("no payload schema")

var payloadValidator = validator.New(validator.WithRequiredStructEnabled())

type payloadDecoder func(data json.RawMessage) (any, error)

// schemas maps event type -> envelope version -> decoder. It is filled while
// the EventRegistry is built and only read afterwards.
type schemas map[enums.OutboxEventType]map[int]payloadDecoder

func (s schemas) add(eventType enums.OutboxEventType, version int, decode payloadDecoder) {
	if version <= 0 {
		panic(fmt.Sprintf("schema %s: version must be positive", eventType))
	}
	byVersion, ok := s[eventType]
	if !ok {
		byVersion = map[int]payloadDecoder{}
		s[eventType] = byVersion
	}
	if _, dup := byVersion[version]; dup {
		panic(fmt.Sprintf("schema %s@v%d registered twice", eventType, version))
	}
	byVersion[version] = decode
}

func (s schemas) decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	decode, ok := s[eventType][version]
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoSchema, eventType, version)
	}
	return decode(data)
}

// latest reports the highest registered version for eventType, or 0.
func (s schemas) latest(eventType enums.OutboxEventType) int {
	newest := 0
	for version := range s[eventType] {
		newest = max(newest, version)
	}
	return newest
}

// typed unmarshals into T and runs the struct's validate tags.
func typed[T any]() payloadDecoder {
	return func(data json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		if err := payloadValidator.Struct(out); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		return out, nil
	}
}
