package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/voucherz-backend/pkg/redis"
)

var (
	ErrConsumerRequired = errors.New("consumer name is required")
	ErrEventIDRequired  = errors.New("event id is required")
)

// Manager records which delivered events a consumer has taken ownership of,
// so at-least-once deliveries are handled once. A claim lives under
// vz:idempotency:evt:<consumer>:<event_id> and holds the claim time.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("claim ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// Claim takes ownership of eventID for consumer. It reports false when an
// earlier delivery already holds the claim.
func (m *Manager) Claim(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
}

// Release drops a claim after a failed attempt so the next delivery is
// processed again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	switch {
	case consumer == "":
		return "", ErrConsumerRequired
	case eventID == "":
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID), nil
}
