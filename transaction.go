package hangfire

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

// Transaction is a scoped, pipelined buffer of Redis commands. Nothing
// executes until Commit, which issues the whole batch as one MULTI/EXEC
// round-trip, so the mutations become observable at once. All keys are
// auto-prefixed. Argument errors stick to the transaction and surface from
// Commit; once an operation is rejected the whole batch is rejected.
//
// A Transaction belongs to the goroutine that created it. Closing without
// committing discards the queued operations.
type Transaction struct {
	storage *Storage

	ops       []func(conn redis.Conn) error
	err       error
	committed bool
}

func newTransaction(storage *Storage) *Transaction {
	return &Transaction{storage: storage}
}

func (t *Transaction) prefix() string {
	return t.storage.opts.Prefix
}

func (t *Transaction) send(args ...interface{}) {
	t.ops = append(t.ops, func(conn redis.Conn) error {
		return conn.Send(args[0].(string), args[1:]...)
	})
}

func (t *Transaction) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Commit flushes the buffered commands inside MULTI/EXEC. Committing twice
// is an error; a transaction whose arguments were rejected never reaches
// Redis.
func (t *Transaction) Commit() error {
	if t.committed {
		return ErrTransactionCommitted
	}
	t.committed = true
	if t.err != nil {
		return t.err
	}
	if len(t.ops) == 0 {
		return nil
	}

	conn := t.storage.pool.Get()
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return storageError(err, "transaction multi")
	}
	for _, op := range t.ops {
		if err := op(conn); err != nil {
			return storageError(err, "transaction send")
		}
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return storageError(err, "transaction exec")
	}
	return nil
}

// Close discards the transaction if it was never committed.
func (t *Transaction) Close() {
	t.ops = nil
}

// ExpireJob sets a TTL on the job hash and its :state and :history siblings.
func (t *Transaction) ExpireJob(jobID string, expireIn time.Duration) {
	if jobID == "" {
		t.fail(argumentError("jobID"))
		return
	}
	seconds := int64(expireIn.Seconds())
	t.send("EXPIRE", redisKeyJob(t.prefix(), jobID), seconds)
	t.send("EXPIRE", redisKeyJobState(t.prefix(), jobID), seconds)
	t.send("EXPIRE", redisKeyJobHistory(t.prefix(), jobID), seconds)
}

// PersistJob removes the TTL from the job hash and its siblings.
func (t *Transaction) PersistJob(jobID string) {
	if jobID == "" {
		t.fail(argumentError("jobID"))
		return
	}
	t.send("PERSIST", redisKeyJob(t.prefix(), jobID))
	t.send("PERSIST", redisKeyJobState(t.prefix(), jobID))
	t.send("PERSIST", redisKeyJobHistory(t.prefix(), jobID))
}

// SetJobState makes state the job's current state: the State field on the
// job hash, a rewritten :state snapshot, and a history entry.
func (t *Transaction) SetJobState(jobID string, state State) {
	if jobID == "" {
		t.fail(argumentError("jobID"))
		return
	}
	if state.Name == "" {
		t.fail(argumentError("state.Name"))
		return
	}
	stateKey := redisKeyJobState(t.prefix(), jobID)

	t.send("HSET", redisKeyJob(t.prefix(), jobID), "State", state.Name)
	t.send("DEL", stateKey)

	args := redis.Args{}.Add(stateKey, "State", state.Name)
	if state.Reason != "" {
		args = args.Add("Reason", state.Reason)
	}
	for k, v := range state.Data {
		args = args.Add(k, v)
	}
	t.ops = append(t.ops, func(conn redis.Conn) error {
		return conn.Send("HSET", args...)
	})

	t.AddJobState(jobID, state)
}

// AddJobState appends a history entry for state without touching the current
// state. Entries appear in commit order.
func (t *Transaction) AddJobState(jobID string, state State) {
	if jobID == "" {
		t.fail(argumentError("jobID"))
		return
	}
	entry, err := serializeHistoryEntry(state, nowUTC())
	if err != nil {
		t.fail(storageError(err, "serialize history entry"))
		return
	}
	t.send("RPUSH", redisKeyJobHistory(t.prefix(), jobID), entry)
}

// AddToQueue registers the queue, pushes the job ID onto it and publishes a
// wake signal for blocked fetchers. Queues named in LifoQueues push to the
// consuming end, so the newest job is fetched first.
func (t *Transaction) AddToQueue(queue, jobID string) {
	if queue == "" {
		t.fail(argumentError("queue"))
		return
	}
	if jobID == "" {
		t.fail(argumentError("jobID"))
		return
	}
	t.send("SADD", redisKeyQueues(t.prefix()), queue)
	if t.storage.isLifoQueue(queue) {
		t.send("RPUSH", redisKeyQueue(t.prefix(), queue), jobID)
	} else {
		t.send("LPUSH", redisKeyQueue(t.prefix(), queue), jobID)
	}
	t.send("PUBLISH", redisKeyFetchChannel(t.prefix()), jobID)
}

// IncrementCounter adds one to a counter key.
func (t *Transaction) IncrementCounter(key string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("INCR", t.prefix()+key)
}

// IncrementCounterWithExpiry adds one to a counter key and refreshes its TTL.
func (t *Transaction) IncrementCounterWithExpiry(key string, expireIn time.Duration) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("INCR", t.prefix()+key)
	t.send("EXPIRE", t.prefix()+key, int64(expireIn.Seconds()))
}

// DecrementCounter subtracts one from a counter key.
func (t *Transaction) DecrementCounter(key string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("DECR", t.prefix()+key)
}

// DecrementCounterWithExpiry subtracts one and refreshes the key's TTL.
func (t *Transaction) DecrementCounterWithExpiry(key string, expireIn time.Duration) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("DECR", t.prefix()+key)
	t.send("EXPIRE", t.prefix()+key, int64(expireIn.Seconds()))
}

// AddToSet adds value to a sorted set with score 0.
func (t *Transaction) AddToSet(key, value string) {
	t.AddToSetWithScore(key, value, 0)
}

// AddToSetWithScore adds value to a sorted set; the score orders the set.
func (t *Transaction) AddToSetWithScore(key, value string, score float64) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if value == "" {
		t.fail(argumentError("value"))
		return
	}
	t.send("ZADD", t.prefix()+key, score, value)
}

// AddRangeToSet adds every item with score 0.
func (t *Transaction) AddRangeToSet(key string, items []string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if len(items) == 0 {
		t.fail(argumentError("items"))
		return
	}
	args := redis.Args{}.Add(t.prefix() + key)
	for _, item := range items {
		args = args.Add(0, item)
	}
	t.ops = append(t.ops, func(conn redis.Conn) error {
		return conn.Send("ZADD", args...)
	})
}

// RemoveFromSet removes value from a sorted set.
func (t *Transaction) RemoveFromSet(key, value string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if value == "" {
		t.fail(argumentError("value"))
		return
	}
	t.send("ZREM", t.prefix()+key, value)
}

// RemoveSet deletes the whole sorted set.
func (t *Transaction) RemoveSet(key string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("DEL", t.prefix()+key)
}

// InsertToList pushes value onto the head of a list.
func (t *Transaction) InsertToList(key, value string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if value == "" {
		t.fail(argumentError("value"))
		return
	}
	t.send("LPUSH", t.prefix()+key, value)
}

// RemoveFromList removes all occurrences of value from a list.
func (t *Transaction) RemoveFromList(key, value string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if value == "" {
		t.fail(argumentError("value"))
		return
	}
	t.send("LREM", t.prefix()+key, 0, value)
}

// TrimList trims a list to the inclusive range [start, end].
func (t *Transaction) TrimList(key string, start, end int) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("LTRIM", t.prefix()+key, start, end)
}

// SetRangeInHash sets every field of the map on a hash.
func (t *Transaction) SetRangeInHash(key string, fields map[string]string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	if len(fields) == 0 {
		t.fail(argumentError("fields"))
		return
	}
	args := redis.Args{}.Add(t.prefix() + key).AddFlat(fields)
	t.ops = append(t.ops, func(conn redis.Conn) error {
		return conn.Send("HSET", args...)
	})
}

// RemoveHash deletes the whole hash.
func (t *Transaction) RemoveHash(key string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("DEL", t.prefix()+key)
}

// ExpireHash sets a TTL on a hash key.
func (t *Transaction) ExpireHash(key string, expireIn time.Duration) {
	t.expireKey(key, expireIn)
}

// ExpireList sets a TTL on a list key.
func (t *Transaction) ExpireList(key string, expireIn time.Duration) {
	t.expireKey(key, expireIn)
}

// ExpireSet sets a TTL on a sorted-set key.
func (t *Transaction) ExpireSet(key string, expireIn time.Duration) {
	t.expireKey(key, expireIn)
}

// PersistHash removes the TTL from a hash key.
func (t *Transaction) PersistHash(key string) {
	t.persistKey(key)
}

// PersistList removes the TTL from a list key.
func (t *Transaction) PersistList(key string) {
	t.persistKey(key)
}

// PersistSet removes the TTL from a sorted-set key.
func (t *Transaction) PersistSet(key string) {
	t.persistKey(key)
}

func (t *Transaction) expireKey(key string, expireIn time.Duration) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("EXPIRE", t.prefix()+key, int64(expireIn.Seconds()))
}

func (t *Transaction) persistKey(key string) {
	if key == "" {
		t.fail(argumentError("key"))
		return
	}
	t.send("PERSIST", t.prefix()+key)
}
