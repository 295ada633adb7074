package hangfire

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
)

const sweepBatchSize = 100

// expiredJobsWatcher garbage-collects the succeeded and deleted lists:
// terminal states give job hashes a TTL, and once a hash expires the list
// entry pointing at it is a dangling reference. The sweep scans tail to
// head in batches, checks EXISTS for every referenced job in one pipeline,
// and removes the missing ones in a single write transaction. Errors are
// logged and retried on the next tick.
type expiredJobsWatcher struct {
	storage       *Storage
	checkInterval time.Duration
}

func newExpiredJobsWatcher(storage *Storage) *expiredJobsWatcher {
	return &expiredJobsWatcher{
		storage:       storage,
		checkInterval: storage.opts.ExpiryCheckInterval,
	}
}

var sweptLists = []string{"succeeded", "deleted"}

func (w *expiredJobsWatcher) Execute(ctx context.Context) {
	for {
		for _, key := range sweptLists {
			if err := w.sweep(ctx, key); err != nil && errors.Cause(err) != context.Canceled {
				logError("expired_jobs_watcher."+key, err)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.checkInterval):
		}
	}
}

func (w *expiredJobsWatcher) sweep(ctx context.Context, key string) error {
	conn := w.storage.GetConnection()

	total, err := conn.GetListCount(key)
	if err != nil {
		return err
	}

	for start := int64(0); start < total; {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Tail-to-head: the oldest entries expire first.
		from := -(start + sweepBatchSize)
		to := -(start + 1)
		jobIDs, err := conn.GetRangeFromList(key, int(from), int(to))
		if err != nil {
			return err
		}
		if len(jobIDs) == 0 {
			break
		}

		dangling, err := w.missingJobs(jobIDs)
		if err != nil {
			return err
		}

		if len(dangling) > 0 {
			tx := conn.CreateTransaction()
			for _, jobID := range dangling {
				tx.RemoveFromList(key, jobID)
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			w.storage.countSwept(len(dangling))
		}

		// Removals shrink the list under the negative offsets, so advance
		// only past the entries this batch kept; the removed positions are
		// backfilled from the head and get scanned by the same window.
		start += int64(len(jobIDs) - len(dangling))
	}
	return nil
}

// missingJobs pipelines EXISTS for every referenced job hash and returns the
// IDs whose hash no longer exists.
func (w *expiredJobsWatcher) missingJobs(jobIDs []string) ([]string, error) {
	prefix := w.storage.opts.Prefix
	conn := w.storage.pool.Get()
	defer conn.Close()

	for _, jobID := range jobIDs {
		if err := conn.Send("EXISTS", redisKeyJob(prefix, jobID)); err != nil {
			return nil, storageError(err, "sweep exists send")
		}
	}
	if err := conn.Flush(); err != nil {
		return nil, storageError(err, "sweep exists flush")
	}

	var missing []string
	for _, jobID := range jobIDs {
		exists, err := redis.Bool(conn.Receive())
		if err != nil {
			return nil, storageError(err, "sweep exists receive")
		}
		if !exists {
			missing = append(missing, jobID)
		}
	}
	return missing, nil
}
