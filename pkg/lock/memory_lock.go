package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLock 单进程实现，没有 redis 时使用 (CLI、测试)
type MemoryLock struct {
	mu   sync.Mutex
	now  func() time.Time
	held map[string]memoryLease
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{now: time.Now, held: make(map[string]memoryLease)}
}

func (l *MemoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLock) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.held[key]
	if !ok || cur.token != token || !l.now().Before(cur.expires) {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}

func (l *MemoryLock) Refresh(ctx context.Context, key, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cur, ok := l.held[key]
	if !ok || cur.token != token || !now.Before(cur.expires) {
		return ErrNotHeld
	}
	l.held[key] = memoryLease{token: token, expires: now.Add(ttl)}
	return nil
}
