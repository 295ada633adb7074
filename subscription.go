package hangfire

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Subscription listens on the job-fetch channel and wakes blocked fetchers.
// The one-slot wake channel coalesces bursts of enqueues into a single wake,
// which is enough: a woken fetcher re-polls every queue anyway.
//
// A Publish that lands strictly after WaitForJob starts waiting is observed;
// one that raced with the previous poll pass may be missed and is absorbed
// by the wait timeout, which is therefore the worst-case fetch latency.
type Subscription struct {
	prefix string
	pool   *redis.Pool

	wake chan struct{}
}

func newSubscription(prefix string, pool *redis.Pool) *Subscription {
	return &Subscription{
		prefix: prefix,
		pool:   pool,
		wake:   make(chan struct{}, 1),
	}
}

// WaitForJob drains any stale wake signal, then blocks until a new signal,
// the timeout, or the context, whichever fires first. Only a cancelled
// context is an error.
func (s *Subscription) WaitForJob(ctx context.Context, timeout time.Duration) error {
	select {
	case <-s.wake:
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.wake:
		return nil
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute runs the receiver until the context is cancelled, then
// unsubscribes and drops the connection. A broken pub/sub connection is
// redialed; fetchers fall back to their poll timeout in the meantime.
func (s *Subscription) Execute(ctx context.Context) {
	for {
		if err := s.receive(ctx); err != nil {
			logError("subscription.receive", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Subscription) receive(ctx context.Context) error {
	psc := redis.PubSubConn{Conn: s.pool.Get()}
	defer psc.Close()

	if err := psc.Subscribe(redisKeyFetchChannel(s.prefix)); err != nil {
		return storageError(err, "subscribe")
	}

	done := make(chan error, 1)
	go func() {
		for {
			switch v := psc.Receive().(type) {
			case redis.Message:
				select {
				case s.wake <- struct{}{}:
				default:
				}
			case error:
				done <- v
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		psc.Unsubscribe()
		psc.Close()
		<-done
		return nil
	case err := <-done:
		return storageError(err, "pubsub receive")
	}
}
