package hangfire

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

const testPrefix = "{hangfire-test}:"

func newTestPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxActive:   3,
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr)
		},
		Wait: true,
	}
}

func testStorage(pool *redis.Pool) *Storage {
	return testStorageWithOptions(pool, &Options{})
}

func testStorageWithOptions(pool *redis.Pool, opts *Options) *Storage {
	if opts.Prefix == "" {
		opts.Prefix = testPrefix
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = 50 * time.Millisecond
	}
	if opts.FetchedLockTimeout == 0 {
		opts.FetchedLockTimeout = 250 * time.Millisecond
	}
	return NewStorage(pool, opts)
}

func cleanKeyspace(prefix string, pool *redis.Pool) {
	conn := pool.Get()
	defer conn.Close()

	keys, err := redis.Strings(conn.Do("KEYS", prefix+"*"))
	if err != nil {
		panic("could not get keys: " + err.Error())
	}
	for _, k := range keys {
		if _, err := conn.Do("DEL", k); err != nil {
			panic("could not del: " + err.Error())
		}
	}
}

func listSize(pool *redis.Pool, key string) int {
	conn := pool.Get()
	defer conn.Close()

	size, err := redis.Int(conn.Do("LLEN", key))
	if err != nil {
		panic("could not llen: " + err.Error())
	}
	return size
}

func zsetSize(pool *redis.Pool, key string) int {
	conn := pool.Get()
	defer conn.Close()

	size, err := redis.Int(conn.Do("ZCARD", key))
	if err != nil {
		panic("could not zcard: " + err.Error())
	}
	return size
}

func zsetScore(pool *redis.Pool, key, member string) float64 {
	conn := pool.Get()
	defer conn.Close()

	score, err := redis.Float64(conn.Do("ZSCORE", key, member))
	if err != nil {
		panic("could not zscore: " + err.Error())
	}
	return score
}

func hashGet(pool *redis.Pool, key, field string) string {
	conn := pool.Get()
	defer conn.Close()

	value, err := redis.String(conn.Do("HGET", key, field))
	if err == redis.ErrNil {
		return ""
	}
	if err != nil {
		panic("could not hget: " + err.Error())
	}
	return value
}

func listIndex(pool *redis.Pool, key string, index int) string {
	conn := pool.Get()
	defer conn.Close()

	value, err := redis.String(conn.Do("LINDEX", key, index))
	if err == redis.ErrNil {
		return ""
	}
	if err != nil {
		panic("could not lindex: " + err.Error())
	}
	return value
}

func keyTTLSeconds(pool *redis.Pool, key string) int64 {
	conn := pool.Get()
	defer conn.Close()

	ttl, err := redis.Int64(conn.Do("TTL", key))
	if err != nil {
		panic("could not ttl: " + err.Error())
	}
	return ttl
}

func setMember(pool *redis.Pool, key, member string) bool {
	conn := pool.Get()
	defer conn.Close()

	ok, err := redis.Bool(conn.Do("SISMEMBER", key, member))
	if err != nil {
		panic("could not sismember: " + err.Error())
	}
	return ok
}
