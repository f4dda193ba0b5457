package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlez-backend/pkg/instance"
)

type memoryLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
	delErr error
}

func (m *memoryLockStore) ExpireIfValue(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	if m.ttls == nil {
		m.ttls = map[string]time.Duration{}
	}
	m.ttls[key] = ttl
	return true, nil
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key], _ = value.(string)
	return true, nil
}

func (m *memoryLockStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.delErr != nil {
		return false, m.delErr
	}
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "sz:lock:cron-worker:test", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "sz:lock:cron-worker:test", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(store.values["sz:lock:cron-worker:test"], instance.GetID()+":"))

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "sz:lock:cron-worker:test", "non-owner must not release")

	require.NoError(t, first.Release(ctx))
	assert.NotContains(t, store.values, "sz:lock:cron-worker:test")
}

func TestRedisLockLeavesForeignOwnerAlone(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.values["k"] = "other-instance:after-expiry"
	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-instance:after-expiry", store.values["k"])
}

func TestRedisLockValidationAndErrors(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(&memoryLockStore{}, "", time.Minute)
	assert.Error(t, err)

	store := &memoryLockStore{values: map[string]string{}, delErr: errors.New("conn reset")}
	lock, err := NewRedisLock(store, "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLockTTL, lock.ttl)

	_, err = lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.ErrorContains(t, lock.Release(context.Background()), "conn reset")
}

func TestRedisLockRefresh(t *testing.T) {
	store := &memoryLockStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "k", time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	held, err := lock.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, held, "refresh before acquire")

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	held, err = lock.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, held)
	assert.Equal(t, time.Minute, store.ttls["k"])

	store.values["k"] = "other-instance:after-expiry"
	held, err = lock.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "other-instance:after-expiry", store.values["k"])
}
