package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultLeaderTTL = 10 * time.Minute

// Lock coordinates exclusive cron runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// lockCoordinator is satisfied by *locks.Coordinator.
type lockCoordinator interface {
	TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

// LeaderLock elects one worker per cycle through the shared lock coordinator.
// Every Acquire uses a fresh owner token, so a replica that outlived its TTL
// can never drop a lock taken by the next leader.
type LeaderLock struct {
	locks lockCoordinator
	name  string
	ttl   time.Duration

	mu    sync.Mutex
	owner string
}

func NewLeaderLock(locks lockCoordinator, name string, ttl time.Duration) (*LeaderLock, error) {
	if locks == nil {
		return nil, errors.New("lock coordinator required")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaderTTL
	}
	return &LeaderLock{locks: locks, name: name, ttl: ttl}, nil
}

func (l *LeaderLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.locks.TryAcquire(ctx, l.name, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire leader lock: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.owner = owner
		l.mu.Unlock()
	}
	return ok, nil
}

func (l *LeaderLock) Release(ctx context.Context) error {
	l.mu.Lock()
	owner := l.owner
	l.owner = ""
	l.mu.Unlock()
	if owner == "" {
		return nil
	}
	if err := l.locks.Release(ctx, l.name, owner); err != nil {
		return fmt.Errorf("release leader lock: %w", err)
	}
	return nil
}
