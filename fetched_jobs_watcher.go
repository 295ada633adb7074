package hangfire

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// fetchedJobsWatcher recovers jobs owned by workers that died between fetch
// and ack. Every cycle it walks each queue's dequeued list under a per-queue
// lock, stamps first-seen jobs with a Checked flag, and requeues jobs whose
// Fetched or Checked timestamp is past its budget. Per-iteration errors are
// logged and retried next cycle; the watcher never halts the worker.
type fetchedJobsWatcher struct {
	storage *Storage

	invisibilityTimeout time.Duration
	checkedTimeout      time.Duration
	fetchedLockTimeout  time.Duration
	sleepTimeout        time.Duration
}

func newFetchedJobsWatcher(storage *Storage) *fetchedJobsWatcher {
	opts := storage.opts
	return &fetchedJobsWatcher{
		storage:             storage,
		invisibilityTimeout: opts.InvisibilityTimeout,
		checkedTimeout:      opts.CheckedTimeout,
		fetchedLockTimeout:  opts.FetchedLockTimeout,
		sleepTimeout:        opts.SleepTimeout,
	}
}

func (w *fetchedJobsWatcher) Execute(ctx context.Context) {
	for {
		if err := w.runOnce(ctx); err != nil && errors.Cause(err) != context.Canceled {
			logError("fetched_jobs_watcher", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.sleepTimeout):
		}
	}
}

func (w *fetchedJobsWatcher) runOnce(ctx context.Context) error {
	conn := w.storage.GetConnection()

	queues, err := conn.GetQueues()
	if err != nil {
		return err
	}

	for _, queue := range queues {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processQueue(ctx, queue); err != nil {
			return err
		}
	}
	return nil
}

func (w *fetchedJobsWatcher) processQueue(ctx context.Context, queue string) error {
	prefix := w.storage.opts.Prefix

	lock, err := acquireLock(ctx, w.storage.pool, redisKeyQueueDequeuedLock(prefix, queue), w.fetchedLockTimeout)
	if err == ErrLockTimeout {
		// Another watcher instance owns this queue right now.
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	conn := w.storage.GetConnection()
	jobIDs, err := conn.GetAllItemsFromList("queue:" + queue + ":dequeued")
	if err != nil {
		return err
	}

	for _, jobID := range jobIDs {
		if err := w.checkJob(conn, queue, jobID); err != nil {
			return err
		}
	}
	return nil
}

func (w *fetchedJobsWatcher) checkJob(conn *Connection, queue, jobID string) error {
	fields, err := conn.GetAllEntriesFromHash("job:" + jobID)
	if err != nil {
		return err
	}

	fetched := fields["Fetched"]
	checked := fields["Checked"]

	// First observation of an untracked fetched job: stamp it and decide on
	// a later cycle.
	if fetched == "" && checked == "" {
		return conn.SetJobParameter(jobID, "Checked", formatTime(nowUTC()))
	}

	if !w.timedOut(fetched, checked) {
		return nil
	}

	// Dispose-as-requeue puts the job back on the queue tail and clears the
	// tracking flags.
	if err := newFetchedJob(w.storage, jobID, queue).Close(); err != nil {
		return err
	}
	w.storage.countRequeued()
	return nil
}

func (w *fetchedJobsWatcher) timedOut(fetched, checked string) bool {
	now := nowUTC()
	if fetched != "" {
		t, err := parseTime(fetched)
		return err == nil && now.Sub(t) > w.invisibilityTimeout
	}
	if checked != "" {
		t, err := parseTime(checked)
		return err == nil && now.Sub(t) > w.checkedTimeout
	}
	return false
}
