package hangfire

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Connection is the per-worker storage handle. It creates jobs, fetches the
// next job across queues, takes distributed locks, reads job and state data
// and manages server registration. Connections are cheap; the Redis pool
// behind them is shared and thread-safe.
type Connection struct {
	storage *Storage
}

func (c *Connection) prefix() string {
	return c.storage.opts.Prefix
}

// CreateTransaction opens a new write transaction against the same storage.
func (c *Connection) CreateTransaction() *Transaction {
	return newTransaction(c.storage)
}

// CreateExpiredJob writes a fresh job record merged from the invocation
// fields and the user parameters, with TTL expireIn so a job that is never
// enqueued cleans up after itself. Returns the new job ID.
func (c *Connection) CreateExpiredJob(invocation *InvocationData, parameters map[string]string, createdAt time.Time, expireIn time.Duration) (string, error) {
	if invocation == nil {
		return "", argumentError("invocation")
	}
	if expireIn <= 0 {
		return "", argumentError("expireIn")
	}

	jobID := makeJobID()

	fields := make(map[string]string, len(parameters)+5)
	for k, v := range parameters {
		fields[k] = v
	}
	fields["Type"] = invocation.Type
	fields["Method"] = invocation.Method
	fields["ParameterTypes"] = invocation.ParameterTypes
	fields["Arguments"] = invocation.Arguments
	fields["CreatedAt"] = formatTime(createdAt)

	conn := c.storage.pool.Get()
	defer conn.Close()

	jobKey := redisKeyJob(c.prefix(), jobID)
	if err := conn.Send("HSET", redis.Args{}.Add(jobKey).AddFlat(fields)...); err != nil {
		return "", storageError(err, "create job hset")
	}
	if err := conn.Send("EXPIRE", jobKey, int64(expireIn.Seconds())); err != nil {
		return "", storageError(err, "create job expire")
	}
	if err := conn.Flush(); err != nil {
		return "", storageError(err, "create job flush")
	}
	for i := 0; i < 2; i++ {
		if _, err := conn.Receive(); err != nil {
			return "", storageError(err, "create job receive")
		}
	}
	return jobID, nil
}

// AcquireDistributedLock takes a Redis-side lock on the prefixed resource
// name. The timeout is both the wait budget and the lock's expiry. Returns
// ErrLockTimeout when the lock stays busy for the whole budget.
func (c *Connection) AcquireDistributedLock(ctx context.Context, resource string, timeout time.Duration) (*DistributedLock, error) {
	if resource == "" {
		return nil, argumentError("resource")
	}
	return acquireLock(ctx, c.storage.pool, c.prefix()+resource, timeout)
}

// FetchNextJob polls the queues in caller order, moving the first available
// job ID from queue:<q> to queue:<q>:dequeued in one atomic step and
// stamping Fetched on the job hash. When every queue is empty it blocks on
// the subscription for up to FetchTimeout and retries. It returns with a
// fetched job, the context's error, or a storage error from a poll.
func (c *Connection) FetchNextJob(ctx context.Context, queues []string) (*FetchedJob, error) {
	if len(queues) == 0 {
		return nil, argumentError("queues")
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		job, err := c.pollQueues(queues)
		if err != nil {
			return nil, err
		}
		if job != nil {
			c.storage.countFetched()
			return job, nil
		}

		if err := c.storage.subscription.WaitForJob(ctx, c.storage.opts.FetchTimeout); err != nil {
			return nil, err
		}
	}
}

func (c *Connection) pollQueues(queues []string) (*FetchedJob, error) {
	conn := c.storage.pool.Get()
	defer conn.Close()

	for _, queue := range queues {
		jobID, err := redis.String(conn.Do("RPOPLPUSH",
			redisKeyQueue(c.prefix(), queue),
			redisKeyQueueDequeued(c.prefix(), queue)))
		if err == redis.ErrNil {
			continue
		}
		if err != nil {
			return nil, storageError(err, "fetch rpoplpush")
		}

		if _, err := conn.Do("HSET", redisKeyJob(c.prefix(), jobID), "Fetched", formatTime(nowUTC())); err != nil {
			return nil, storageError(err, "fetch mark")
		}
		return newFetchedJob(c.storage, jobID, queue), nil
	}
	return nil, nil
}

// ServerContext describes a server announcing itself to the registry.
type ServerContext struct {
	WorkerCount int
	Queues      []string
}

// AnnounceServer registers a server and records its worker count, start time
// and served queues.
func (c *Connection) AnnounceServer(serverID string, server *ServerContext) error {
	if serverID == "" {
		return argumentError("serverID")
	}
	if server == nil {
		return argumentError("server")
	}

	conn := c.storage.pool.Get()
	defer conn.Close()

	conn.Send("SADD", redisKeyServers(c.prefix()), serverID)
	conn.Send("HSET", redisKeyServer(c.prefix(), serverID),
		"WorkerCount", server.WorkerCount,
		"StartedAt", formatTime(nowUTC()))
	queuesKey := redisKeyServerQueues(c.prefix(), serverID)
	conn.Send("DEL", queuesKey)
	if len(server.Queues) > 0 {
		args := redis.Args{}.Add(queuesKey)
		for _, q := range server.Queues {
			args = args.Add(q)
		}
		conn.Send("RPUSH", args...)
	}
	if _, err := conn.Do(""); err != nil {
		return storageError(err, "announce server")
	}
	return nil
}

// Heartbeat refreshes the server's liveness timestamp.
func (c *Connection) Heartbeat(serverID string) error {
	if serverID == "" {
		return argumentError("serverID")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("HSET", redisKeyServer(c.prefix(), serverID), "Heartbeat", formatTime(nowUTC())); err != nil {
		return storageError(err, "heartbeat")
	}
	return nil
}

// RemoveServer deregisters a server and deletes its record.
func (c *Connection) RemoveServer(serverID string) error {
	if serverID == "" {
		return argumentError("serverID")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	conn.Send("SREM", redisKeyServers(c.prefix()), serverID)
	conn.Send("DEL", redisKeyServer(c.prefix(), serverID), redisKeyServerQueues(c.prefix(), serverID))
	if _, err := conn.Do(""); err != nil {
		return storageError(err, "remove server")
	}
	return nil
}

// RemoveTimedOutServers removes every server whose last sign of life
// (StartedAt or Heartbeat, whichever is later) is older than timeout.
// Returns the number of servers removed.
func (c *Connection) RemoveTimedOutServers(timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return 0, argumentError("timeout")
	}

	conn := c.storage.pool.Get()
	defer conn.Close()

	serverIDs, err := redis.Strings(conn.Do("SMEMBERS", redisKeyServers(c.prefix())))
	if err != nil {
		return 0, storageError(err, "list servers")
	}

	removed := 0
	now := nowUTC()
	for _, serverID := range serverIDs {
		values, err := redis.Values(conn.Do("HMGET", redisKeyServer(c.prefix(), serverID), "StartedAt", "Heartbeat"))
		if err != nil {
			return removed, storageError(err, "read server")
		}

		lastSeen := time.Time{}
		for _, v := range values {
			s, err := redis.String(v, nil)
			if err != nil {
				// Absent field.
				continue
			}
			if t, err := parseTime(s); err == nil && t.After(lastSeen) {
				lastSeen = t
			}
		}
		if lastSeen.IsZero() || now.Sub(lastSeen) <= timeout {
			continue
		}

		if err := c.RemoveServer(serverID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// GetJobData reads a job record. Returns nil when the job hash does not
// exist. An unreadable invocation blob is reported via JobData.LoadError,
// not as a call error.
func (c *Connection) GetJobData(jobID string) (*JobData, error) {
	if jobID == "" {
		return nil, argumentError("jobID")
	}

	fields, err := c.GetAllEntriesFromHash("job:" + jobID)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}

	data := &JobData{State: fields["State"]}
	if raw := fields["CreatedAt"]; raw != "" {
		if t, err := parseTime(raw); err == nil {
			data.CreatedAt = t
		}
	}
	data.Invocation, data.LoadError = invocationFromHash(jobID, fields)
	return data, nil
}

// GetStateData reads the current-state snapshot. Returns nil when the job
// has no state hash.
func (c *Connection) GetStateData(jobID string) (*StateData, error) {
	if jobID == "" {
		return nil, argumentError("jobID")
	}

	fields, err := c.GetAllEntriesFromHash("job:" + jobID + ":state")
	if err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, nil
	}

	state := &StateData{
		Name:   fields["State"],
		Reason: fields["Reason"],
		Data:   make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		if k == "State" || k == "Reason" {
			continue
		}
		state.Data[k] = v
	}
	return state, nil
}

// SetJobParameter writes an arbitrary user parameter on the job hash.
func (c *Connection) SetJobParameter(jobID, name, value string) error {
	if jobID == "" {
		return argumentError("jobID")
	}
	if name == "" {
		return argumentError("name")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	if _, err := conn.Do("HSET", redisKeyJob(c.prefix(), jobID), name, value); err != nil {
		return storageError(err, "set job parameter")
	}
	return nil
}

// GetJobParameter reads a user parameter; empty string when absent.
func (c *Connection) GetJobParameter(jobID, name string) (string, error) {
	if jobID == "" {
		return "", argumentError("jobID")
	}
	if name == "" {
		return "", argumentError("name")
	}
	return c.GetValueFromHash("job:"+jobID, name)
}

// GetQueues returns the names of all known queues.
func (c *Connection) GetQueues() ([]string, error) {
	conn := c.storage.pool.Get()
	defer conn.Close()

	queues, err := redis.Strings(conn.Do("SMEMBERS", redisKeyQueues(c.prefix())))
	if err != nil {
		return nil, storageError(err, "smembers queues")
	}
	return queues, nil
}

// GetServers returns the IDs of all registered servers.
func (c *Connection) GetServers() ([]string, error) {
	conn := c.storage.pool.Get()
	defer conn.Close()

	servers, err := redis.Strings(conn.Do("SMEMBERS", redisKeyServers(c.prefix())))
	if err != nil {
		return nil, storageError(err, "smembers servers")
	}
	return servers, nil
}

// GetAllEntriesFromHash returns every field of a hash, or nil when the key
// is absent.
func (c *Connection) GetAllEntriesFromHash(key string) (map[string]string, error) {
	if key == "" {
		return nil, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	fields, err := redis.StringMap(conn.Do("HGETALL", c.prefix()+key))
	if err != nil {
		return nil, storageError(err, "hgetall")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// GetValueFromHash returns a single hash field; empty string when absent.
func (c *Connection) GetValueFromHash(key, field string) (string, error) {
	if key == "" {
		return "", argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	value, err := redis.String(conn.Do("HGET", c.prefix()+key, field))
	if err == redis.ErrNil {
		return "", nil
	}
	if err != nil {
		return "", storageError(err, "hget")
	}
	return value, nil
}

// GetAllItemsFromList returns the whole list, head to tail; empty when the
// key is absent.
func (c *Connection) GetAllItemsFromList(key string) ([]string, error) {
	return c.GetRangeFromList(key, 0, -1)
}

// GetRangeFromList returns the inclusive range [from, to] of a list.
func (c *Connection) GetRangeFromList(key string, from, to int) ([]string, error) {
	if key == "" {
		return nil, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	items, err := redis.Strings(conn.Do("LRANGE", c.prefix()+key, from, to))
	if err != nil {
		return nil, storageError(err, "lrange")
	}
	return items, nil
}

// GetListCount returns the length of a list.
func (c *Connection) GetListCount(key string) (int64, error) {
	return c.intCommand("LLEN", key)
}

// GetListTTL returns the remaining TTL of a list key; negative when none.
func (c *Connection) GetListTTL(key string) (time.Duration, error) {
	return c.keyTTL(key)
}

// GetAllItemsFromSet returns every member of a sorted set in score order.
func (c *Connection) GetAllItemsFromSet(key string) ([]string, error) {
	return c.GetRangeFromSet(key, 0, -1)
}

// GetRangeFromSet returns the inclusive rank range [from, to] of a sorted
// set.
func (c *Connection) GetRangeFromSet(key string, from, to int) ([]string, error) {
	if key == "" {
		return nil, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	items, err := redis.Strings(conn.Do("ZRANGE", c.prefix()+key, from, to))
	if err != nil {
		return nil, storageError(err, "zrange")
	}
	return items, nil
}

// GetFirstByLowestScoreFromSet returns the member with the lowest score in
// [from, to], or empty string when there is none.
func (c *Connection) GetFirstByLowestScoreFromSet(key string, from, to float64) (string, error) {
	if key == "" {
		return "", argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	items, err := redis.Strings(conn.Do("ZRANGEBYSCORE", c.prefix()+key, from, to, "LIMIT", 0, 1))
	if err != nil {
		return "", storageError(err, "zrangebyscore")
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[0], nil
}

// GetSetCount returns the cardinality of a sorted set.
func (c *Connection) GetSetCount(key string) (int64, error) {
	return c.intCommand("ZCARD", key)
}

// GetSetTTL returns the remaining TTL of a sorted-set key; negative when
// none.
func (c *Connection) GetSetTTL(key string) (time.Duration, error) {
	return c.keyTTL(key)
}

// GetHashCount returns the number of fields in a hash.
func (c *Connection) GetHashCount(key string) (int64, error) {
	return c.intCommand("HLEN", key)
}

// GetHashTTL returns the remaining TTL of a hash key; negative when none.
func (c *Connection) GetHashTTL(key string) (time.Duration, error) {
	return c.keyTTL(key)
}

// GetCounter returns the value of a counter key, zero when absent.
func (c *Connection) GetCounter(key string) (int64, error) {
	if key == "" {
		return 0, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	value, err := redis.Int64(conn.Do("GET", c.prefix()+key))
	if err == redis.ErrNil {
		return 0, nil
	}
	if err != nil {
		return 0, storageError(err, "get counter")
	}
	return value, nil
}

func (c *Connection) intCommand(command, key string) (int64, error) {
	if key == "" {
		return 0, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	value, err := redis.Int64(conn.Do(command, c.prefix()+key))
	if err != nil {
		return 0, storageError(err, command)
	}
	return value, nil
}

func (c *Connection) keyTTL(key string) (time.Duration, error) {
	if key == "" {
		return 0, argumentError("key")
	}
	conn := c.storage.pool.Get()
	defer conn.Close()

	seconds, err := redis.Int64(conn.Do("TTL", c.prefix()+key))
	if err != nil {
		return 0, storageError(err, "ttl")
	}
	return time.Duration(seconds) * time.Second, nil
}
