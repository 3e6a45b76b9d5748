package lightning

import (
	"context"
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultWalletLockDuration 钱包解锁尝试的标记时长
const DefaultWalletLockDuration = 2 * time.Minute

// WalletLock 钱包忙标志
// Advisory only: it never blocks, callers check Locked before attempting an
// unlock.
type WalletLock interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
	Locked(ctx context.Context) (bool, error)
}

// MemoryWalletLock 进程内钱包锁（时间戳加时长）
type MemoryWalletLock struct {
	mu       sync.Mutex
	clock    time2.Clock
	duration time.Duration
	until    time.Time
}

// NewMemoryWalletLock 创建进程内钱包锁
func NewMemoryWalletLock(clock time2.Clock, duration time.Duration) *MemoryWalletLock {
	if clock == nil {
		clock = time2.DefaultClock
	}
	if duration <= 0 {
		duration = DefaultWalletLockDuration
	}
	return &MemoryWalletLock{clock: clock, duration: duration}
}

func (l *MemoryWalletLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until = l.clock.Now().Add(l.duration)
	return nil
}

func (l *MemoryWalletLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.until = time.Time{}
	return nil
}

func (l *MemoryWalletLock) Locked(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock.Now().Before(l.until), nil
}

// RedisWalletLock 基于 Redis 的钱包锁
// Shares the flag between relay processes driving the same node.
type RedisWalletLock struct {
	client   *redis.Client
	key      string
	duration time.Duration
}

// NewRedisWalletLock 创建 Redis 钱包锁
func NewRedisWalletLock(client *redis.Client, nodeKey string, duration time.Duration) *RedisWalletLock {
	if duration <= 0 {
		duration = DefaultWalletLockDuration
	}
	return &RedisWalletLock{
		client:   client,
		key:      "relay:lock:wallet:" + nodeKey,
		duration: duration,
	}
}

func (l *RedisWalletLock) Lock(ctx context.Context) error {
	if err := l.client.Set(ctx, l.key, "1", l.duration).Err(); err != nil {
		return errors.Wrap(err, "failed to set wallet lock")
	}
	return nil
}

func (l *RedisWalletLock) Unlock(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return errors.Wrap(err, "failed to release wallet lock")
	}
	return nil
}

func (l *RedisWalletLock) Locked(ctx context.Context) (bool, error) {
	n, err := l.client.Exists(ctx, l.key).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to read wallet lock")
	}
	return n > 0, nil
}
