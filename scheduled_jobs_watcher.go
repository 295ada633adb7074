package hangfire

import (
	"context"
	"math"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
)

// scheduledJobsWatcher moves due entries from the schedule sorted set onto
// their queues. The score of a schedule entry is the epoch second it becomes
// due. A successful ZREM is the claim: whichever instance removes the entry
// enqueues it, so concurrent watchers never double-enqueue.
type scheduledJobsWatcher struct {
	storage      *Storage
	pollInterval time.Duration
}

func newScheduledJobsWatcher(storage *Storage) *scheduledJobsWatcher {
	return &scheduledJobsWatcher{
		storage:      storage,
		pollInterval: storage.opts.SchedulePollInterval,
	}
}

func (w *scheduledJobsWatcher) Execute(ctx context.Context) {
	for {
		if err := w.enqueueDueJobs(ctx); err != nil && errors.Cause(err) != context.Canceled {
			logError("scheduled_jobs_watcher", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *scheduledJobsWatcher) enqueueDueJobs(ctx context.Context) error {
	conn := w.storage.GetConnection()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		jobID, err := conn.GetFirstByLowestScoreFromSet("schedule", math.Inf(-1), float64(nowEpochSeconds()))
		if err != nil {
			return err
		}
		if jobID == "" {
			return nil
		}

		claimed, err := w.claim(jobID)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}

		queue, err := conn.GetJobParameter(jobID, "Queue")
		if err != nil {
			return err
		}
		if queue == "" {
			queue = "default"
		}

		tx := conn.CreateTransaction()
		tx.AddToQueue(queue, jobID)
		if err := tx.Commit(); err != nil {
			return err
		}
		w.storage.countScheduledEnqueued()
	}
}

func (w *scheduledJobsWatcher) claim(jobID string) (bool, error) {
	conn := w.storage.pool.Get()
	defer conn.Close()

	removed, err := redis.Int(conn.Do("ZREM", redisKeySchedule(w.storage.opts.Prefix), jobID))
	if err != nil {
		return false, storageError(err, "schedule zrem")
	}
	return removed == 1, nil
}
