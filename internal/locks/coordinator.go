package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope separates lock key spaces so a campaign id can never collide with a
// voucher short code.
type Scope string

const (
	ScopeCampaign Scope = "campaign"
	ScopeVoucher  Scope = "voucher"
	ScopeCron     Scope = "cron"
)

// Store is the subset of the Redis client the coordinator needs.
type Store interface {
	LockKey(scope, name string) string
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key string, value string) (bool, error)
}

// Coordinator hands out named, owner-tagged, expiring locks within one scope.
// A lock that is not released expires after its TTL.
type Coordinator struct {
	store Store
	scope Scope
}

// NewCoordinator binds a store to a scope.
func NewCoordinator(store Store, scope Scope) (*Coordinator, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if strings.TrimSpace(string(scope)) == "" {
		return nil, errors.New("lock scope required")
	}
	return &Coordinator{store: store, scope: scope}, nil
}

// TryAcquire attempts to take name for owner without waiting. A false result
// with a nil error means somebody else holds the lock.
func (c *Coordinator) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if err := validate(name, owner); err != nil {
		return false, err
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}
	ok, err := c.store.SetNX(ctx, c.key(name), owner, ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s lock %q: %w", c.scope, name, err)
	}
	return ok, nil
}

// Release drops the lock only while owner still holds it. Releasing an
// expired or foreign lock is a no-op.
func (c *Coordinator) Release(ctx context.Context, name, owner string) error {
	if err := validate(name, owner); err != nil {
		return err
	}
	if _, err := c.store.CompareAndDelete(ctx, c.key(name), owner); err != nil {
		return fmt.Errorf("release %s lock %q: %w", c.scope, name, err)
	}
	return nil
}

func (c *Coordinator) key(name string) string {
	return c.store.LockKey(string(c.scope), name)
}

func validate(name, owner string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("lock name required")
	}
	if strings.TrimSpace(owner) == "" {
		return errors.New("lock owner required")
	}
	return nil
}
