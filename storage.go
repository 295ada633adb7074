package hangfire

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/gohangfire/hangfire/metrics"
)

// Options is the full configuration surface of the storage core.
type Options struct {
	// Prefix is prepended to every key. Keep the braces: they are the
	// cluster hash tag that pins all core keys to one slot.
	Prefix string

	// Db is the Redis database index. The storage does not read it: the
	// pool handed to NewStorage decides the database, and NewPool takes the
	// index as its own argument.
	Db int

	// InvisibilityTimeout is the budget a worker has to finish a job before
	// the fetched-jobs watcher may hand it to someone else.
	InvisibilityTimeout time.Duration

	// FetchTimeout caps how long FetchNextJob blocks between queue polls.
	FetchTimeout time.Duration

	// ExpiryCheckInterval is the cadence of the expired-jobs sweep.
	ExpiryCheckInterval time.Duration

	// SucceededListSize and DeletedListSize cap the terminal lists.
	SucceededListSize int
	DeletedListSize   int

	// LifoQueues names the queues consumed newest-first.
	LifoQueues []string

	// CheckedTimeout is the budget for a dequeued job that carries no
	// Fetched flag after the watcher stamped it Checked.
	CheckedTimeout time.Duration

	// FetchedLockTimeout caps how long one fetched-jobs watcher run may hold
	// a queue's dequeued lock.
	FetchedLockTimeout time.Duration

	// SleepTimeout is the fetched-jobs watcher's inter-cycle sleep.
	SleepTimeout time.Duration

	// SchedulePollInterval is the cadence of the scheduled-jobs and
	// recurring-jobs pollers.
	SchedulePollInterval time.Duration
}

func (o *Options) applyDefaults() {
	if o.Prefix == "" {
		o.Prefix = DefaultPrefix
	}
	if o.InvisibilityTimeout == 0 {
		o.InvisibilityTimeout = 30 * time.Minute
	}
	if o.FetchTimeout == 0 {
		o.FetchTimeout = 3 * time.Minute
	}
	if o.ExpiryCheckInterval == 0 {
		o.ExpiryCheckInterval = time.Hour
	}
	if o.SucceededListSize == 0 {
		o.SucceededListSize = 499
	}
	if o.DeletedListSize == 0 {
		o.DeletedListSize = 499
	}
	if o.CheckedTimeout == 0 {
		o.CheckedTimeout = time.Minute
	}
	if o.FetchedLockTimeout == 0 {
		o.FetchedLockTimeout = time.Minute
	}
	if o.SleepTimeout == 0 {
		o.SleepTimeout = time.Minute
	}
	if o.SchedulePollInterval == 0 {
		o.SchedulePollInterval = 15 * time.Second
	}
}

// Component is a long-running part of the storage host. Execute returns
// when the context is cancelled.
type Component interface {
	Execute(ctx context.Context)
}

// Storage owns the configuration and the shared Redis pool and hands out
// connections, components and state handlers to the outer scheduler. All
// durable state lives in Redis; Storage itself holds nothing that cannot be
// rebuilt from it.
type Storage struct {
	pool *redis.Pool
	opts Options

	lifoQueues   map[string]struct{}
	subscription *Subscription
	collector    *metrics.Collector
}

// NewStorage builds a storage facade over the given pool. A nil opts means
// all defaults.
func NewStorage(pool *redis.Pool, opts *Options) *Storage {
	var o Options
	if opts != nil {
		o = *opts
	}
	o.applyDefaults()

	lifo := make(map[string]struct{}, len(o.LifoQueues))
	for _, q := range o.LifoQueues {
		lifo[q] = struct{}{}
	}

	return &Storage{
		pool:         pool,
		opts:         o,
		lifoQueues:   lifo,
		subscription: newSubscription(o.Prefix, pool),
	}
}

// NewPool dials a Redis pool the way the cmd hosts do.
func NewPool(addr string, db int) *redis.Pool {
	return &redis.Pool{
		MaxActive:   10,
		MaxIdle:     10,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr, redis.DialDatabase(db))
		},
		Wait: true,
	}
}

// UseMetrics attaches a prometheus collector. Optional; without it the
// counters below are no-ops.
func (s *Storage) UseMetrics(c *metrics.Collector) {
	s.collector = c
}

// GetConnection returns a per-worker handle.
func (s *Storage) GetConnection() *Connection {
	return &Connection{storage: s}
}

// Subscription returns the shared fetch-channel subscription.
func (s *Storage) Subscription() *Subscription {
	return s.subscription
}

// Components returns everything the host must keep running: the
// subscription receiver, both watchers and the two schedule pollers.
func (s *Storage) Components() []Component {
	return []Component{
		s.subscription,
		newFetchedJobsWatcher(s),
		newExpiredJobsWatcher(s),
		newScheduledJobsWatcher(s),
		newRecurringScheduler(s),
	}
}

// StateHandlers returns the handlers the outer scheduler composes into
// every state-change transaction.
func (s *Storage) StateHandlers() []StateHandler {
	return []StateHandler{
		processingStateHandler{},
		failedStateHandler{},
		succeededStateHandler{listSize: s.opts.SucceededListSize},
		deletedStateHandler{listSize: s.opts.DeletedListSize},
	}
}

func (s *Storage) isLifoQueue(queue string) bool {
	_, ok := s.lifoQueues[queue]
	return ok
}

func (s *Storage) countFetched() {
	if s.collector != nil {
		s.collector.JobsFetched.Inc()
	}
}

func (s *Storage) countRequeued() {
	if s.collector != nil {
		s.collector.JobsRequeued.Inc()
	}
}

func (s *Storage) countSwept(n int) {
	if s.collector != nil {
		s.collector.ExpiredReferencesSwept.Add(float64(n))
	}
}

func (s *Storage) countScheduledEnqueued() {
	if s.collector != nil {
		s.collector.ScheduledJobsEnqueued.Inc()
	}
}

func (s *Storage) countRecurringFired() {
	if s.collector != nil {
		s.collector.RecurringJobsFired.Inc()
	}
}
