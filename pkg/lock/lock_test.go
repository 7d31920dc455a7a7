package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLock()
	l.now = func() time.Time { return now }

	token, ok, err := l.Acquire(ctx, "tx:abc", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, "tx:abc", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held")

	assert.ErrorIs(t, l.Release(ctx, "tx:abc", "someone-else"), ErrNotHeld)
	require.NoError(t, l.Release(ctx, "tx:abc", token))

	_, ok, err = l.Acquire(ctx, "tx:abc", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLock()
	l.now = func() time.Time { return now }

	token, ok, _ := l.Acquire(ctx, "cron:prune", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.Acquire(ctx, "cron:prune", time.Second)
	assert.True(t, ok, "expired lease can be taken over")
	assert.ErrorIs(t, l.Release(ctx, "cron:prune", token), ErrNotHeld)
}

func TestMemoryLockRefresh(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLock()
	l.now = func() time.Time { return now }

	token, ok, _ := l.Acquire(ctx, "tx:abc", time.Second)
	require.True(t, ok)

	now = now.Add(800 * time.Millisecond)
	require.NoError(t, l.Refresh(ctx, "tx:abc", token, time.Second))
	assert.ErrorIs(t, l.Refresh(ctx, "tx:abc", "someone-else", time.Second), ErrNotHeld)

	// 续期后原本的过期时间已经过了，锁仍被持有
	now = now.Add(800 * time.Millisecond)
	_, ok, _ = l.Acquire(ctx, "tx:abc", time.Second)
	assert.False(t, ok)

	now = now.Add(time.Second)
	assert.ErrorIs(t, l.Refresh(ctx, "tx:abc", token, time.Second), ErrNotHeld)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lock:cron:prune", Key("cron:prune"))
}
