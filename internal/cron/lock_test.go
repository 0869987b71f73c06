package cron

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{values: map[string]string{}}
	first, err := NewRedisLock(store, "zenergy:lock:cron-worker", 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "zenergy:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// a loser releasing must not free the winner's lock
	require.NoError(t, second.Release(ctx))
	require.Len(t, store.values, 1)

	require.NoError(t, first.Release(ctx))
	require.Empty(t, store.values)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestNewRedisLockValidates(t *testing.T) {
	_, err := NewRedisLock(nil, "key", time.Minute)
	require.Error(t, err)
	_, err = NewRedisLock(&memoryStore{values: map[string]string{}}, "", time.Minute)
	require.Error(t, err)
}

func TestRedisLockOwnerToken(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "zenergy:lock:cron-worker:prod", 0)
	require.NoError(t, err)

	holder, err := lock.Holder(ctx)
	require.NoError(t, err)
	require.Empty(t, holder)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	holder, err = lock.Holder(ctx)
	require.NoError(t, err)
	parts := strings.Split(holder, "/")
	require.Len(t, parts, 4)
	require.Equal(t, LockName, parts[0])
	require.NotEmpty(t, parts[1])
	require.Equal(t, strconv.Itoa(os.Getpid()), parts[2])
}

func TestRedisLockReleaseLeavesTakenOverLock(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{values: map[string]string{}}
	lock, err := NewRedisLock(store, "zenergy:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// the TTL lapsed and another replica took the lock
	store.values["zenergy:lock:cron-worker"] = "cron-worker/other/42/nonce"

	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "cron-worker/other/42/nonce", store.values["zenergy:lock:cron-worker"])
}
