package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failSet error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) LockKey(scope, name string) string {
	return "vz:lock:" + scope + ":" + name
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.failSet != nil {
		return false, m.failSet
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryStore) CompareAndDelete(_ context.Context, key string, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestCoordinatorAcquireIsExclusive(t *testing.T) {
	store := newMemoryStore()
	coord, err := NewCoordinator(store, ScopeCampaign)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := coord.TryAcquire(ctx, "c-1", "owner-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = coord.TryAcquire(ctx, "c-1", "owner-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Second, store.ttls["vz:lock:campaign:c-1"])
}

func TestCoordinatorReleaseRequiresOwner(t *testing.T) {
	store := newMemoryStore()
	coord, err := NewCoordinator(store, ScopeVoucher)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := coord.TryAcquire(ctx, "AAAAAAAAAAAAC", "AAAAAAAAAAAAC", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, coord.Release(ctx, "AAAAAAAAAAAAC", "someone-else"))
	assert.Contains(t, store.values, "vz:lock:voucher:AAAAAAAAAAAAC")

	require.NoError(t, coord.Release(ctx, "AAAAAAAAAAAAC", "AAAAAAAAAAAAC"))
	assert.NotContains(t, store.values, "vz:lock:voucher:AAAAAAAAAAAAC")
}

func TestCoordinatorScopesDoNotCollide(t *testing.T) {
	store := newMemoryStore()
	campaigns, err := NewCoordinator(store, ScopeCampaign)
	require.NoError(t, err)
	vouchers, err := NewCoordinator(store, ScopeVoucher)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := campaigns.TryAcquire(ctx, "same", "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = vouchers.TryAcquire(ctx, "same", "b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCoordinatorValidatesInput(t *testing.T) {
	_, err := NewCoordinator(nil, ScopeCampaign)
	require.Error(t, err)
	_, err = NewCoordinator(newMemoryStore(), "")
	require.Error(t, err)

	coord, err := NewCoordinator(newMemoryStore(), ScopeCampaign)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = coord.TryAcquire(ctx, "", "owner", time.Second)
	require.Error(t, err)
	_, err = coord.TryAcquire(ctx, "name", " ", time.Second)
	require.Error(t, err)
	_, err = coord.TryAcquire(ctx, "name", "owner", 0)
	require.Error(t, err)
	require.Error(t, coord.Release(ctx, "", "owner"))
}

func TestCoordinatorWrapsStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.failSet = errors.New("connection refused")
	coord, err := NewCoordinator(store, ScopeCampaign)
	require.NoError(t, err)

	ok, err := coord.TryAcquire(context.Background(), "c-1", "owner", time.Second)
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, store.failSet)
}
