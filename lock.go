package hangfire

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/gomodule/redigo/redis"
)

const lockPollInterval = 100 * time.Millisecond

// DistributedLock is an expiring-key lock held in Redis. Release it when
// done; if the holder dies, the key expires on its own.
type DistributedLock struct {
	pool  *redis.Pool
	key   string
	value string
}

// acquireLock spins on SET NX until the lock is ours or timeout elapses.
// The acquired key expires after the same timeout, so a crashed holder
// cannot wedge the resource. The context bounds the wait.
func acquireLock(ctx context.Context, pool *redis.Pool, key string, timeout time.Duration) (*DistributedLock, error) {
	value, err := genLockValue()
	if err != nil {
		return nil, storageError(err, "lock value")
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acquired, err := trySetLock(pool, key, value, timeout)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &DistributedLock{pool: pool, key: key, value: value}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func trySetLock(pool *redis.Pool, key, value string, timeout time.Duration) (bool, error) {
	conn := pool.Get()
	defer conn.Close()

	reply, err := conn.Do("SET", key, value, "NX", "PX", int64(timeout/time.Millisecond))
	if err != nil {
		return false, storageError(err, "lock set")
	}
	return reply != nil, nil
}

// Release deletes the lock only if it still holds our value.
func (l *DistributedLock) Release() error {
	conn := l.pool.Get()
	defer conn.Close()

	if _, err := redisReleaseLockScript.Do(conn, l.key, l.value); err != nil {
		return storageError(err, "lock release")
	}
	return nil
}

func genLockValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
