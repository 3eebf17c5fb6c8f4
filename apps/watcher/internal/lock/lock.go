// Package lock provides the run-level lease that keeps two watcher processes
// from scanning the same chain at once.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"transferwatch/apps/watcher/internal/model"
)

// unlockLua deletes the lock key only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// renewLua extends the TTL only while the key still holds the caller's token.
const renewLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

// RedisLock is a SETNX lease with a TTL and a token-checked release. A held
// lease is renewed every third of its TTL until released, so a run may outlast
// the TTL.
type RedisLock struct {
	rdb      redis.UniversalClient
	unlockSc *redis.Script
	renewSc  *redis.Script
	ttl      time.Duration
}

func NewRedisLock(rdb redis.UniversalClient, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb:      rdb,
		unlockSc: redis.NewScript(unlockLua),
		renewSc:  redis.NewScript(renewLua),
		ttl:      ttl,
	}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisLock, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return NewRedisLock(rdb, ttl), nil
}

func Key(chainID string) string {
	return "lock:transferwatch:" + chainID
}

// Acquire takes the lease for key. It returns model.ErrRunInProgress when
// another holder has it. The returned release func stops renewal, is safe to
// call more than once and works even after ctx is cancelled.
func (l *RedisLock) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, model.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done

			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = l.unlockSc.Run(unlockCtx, l.rdb, []string{key}, token).Err()
		})
	}
	return release, nil
}

// keepAlive extends the lease until stop is closed or the lease is lost.
func (l *RedisLock) keepAlive(key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := l.renewSc.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && held == 0 {
				return
			}
		}
	}
}

func (l *RedisLock) Close() error {
	return l.rdb.Close()
}
