package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *memoryLockStore) LockKey(name string) string { return "fulfillment:lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLockStore()
	first, err := NewRedisLock(store, "cron-worker", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "cron-worker", 0)
	require.NoError(t, err)
	assert.Equal(t, "fulfillment:lock:cron-worker", first.Key())

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, defaultLockTTL, store.ttls[first.Key()])

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	assert.Contains(t, store.values, first.Key(), "non-holder must not release")

	require.NoError(t, first.Release(context.Background()))
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, "cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// lease expired and another replica took over
	store.values[lock.Key()] = "someone-else"
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, "someone-else", store.values[lock.Key()])

	delete(store.values, lock.Key())
	assert.NoError(t, lock.Release(context.Background()))
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "x", 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", 0)
	assert.Error(t, err)
}
