package hangfire

import (
	"context"
	"math"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// recurringScheduler fires recurring jobs. The recurring-jobs sorted set
// holds one entry per schedule, scored with its next fire time; the
// recurring-job:<id> hash carries the cron expression, the target queue and
// the invocation fields. When an entry comes due the scheduler creates a
// fresh job, enqueues it and rescores the entry with the next occurrence.
//
// A short per-entry distributed lock keeps multiple scheduler instances from
// firing the same occurrence twice.
type recurringScheduler struct {
	storage      *Storage
	pollInterval time.Duration
	cronParser   cron.Parser
}

func newRecurringScheduler(storage *Storage) *recurringScheduler {
	return &recurringScheduler{
		storage:      storage,
		pollInterval: storage.opts.SchedulePollInterval,
		cronParser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (s *recurringScheduler) Execute(ctx context.Context) {
	for {
		if err := s.fireDueJobs(ctx); err != nil && errors.Cause(err) != context.Canceled {
			logError("recurring_scheduler", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *recurringScheduler) fireDueJobs(ctx context.Context) error {
	conn := s.storage.GetConnection()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		recurringID, err := conn.GetFirstByLowestScoreFromSet("recurring-jobs", math.Inf(-1), float64(nowEpochSeconds()))
		if err != nil {
			return err
		}
		if recurringID == "" {
			return nil
		}

		if err := s.fire(ctx, conn, recurringID); err != nil {
			return err
		}
	}
}

func (s *recurringScheduler) fire(ctx context.Context, conn *Connection, recurringID string) error {
	lock, err := conn.AcquireDistributedLock(ctx, "recurring-job:"+recurringID+":lock", 10*time.Second)
	if err == ErrLockTimeout {
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	// Another instance may have fired this occurrence while we waited for the
	// lock; only an entry that is still due fires.
	redisConn := s.storage.pool.Get()
	score, err := redis.Float64(redisConn.Do("ZSCORE", redisKeyRecurringJobs(s.storage.opts.Prefix), recurringID))
	redisConn.Close()
	if err == redis.ErrNil {
		return nil
	}
	if err != nil {
		return storageError(err, "recurring zscore")
	}
	if score > float64(nowEpochSeconds()) {
		return nil
	}

	fields, err := conn.GetAllEntriesFromHash("recurring-job:" + recurringID)
	if err != nil {
		return err
	}
	if fields == nil {
		// Schedule hash is gone; drop the orphaned entry.
		tx := conn.CreateTransaction()
		tx.RemoveFromSet("recurring-jobs", recurringID)
		return tx.Commit()
	}

	schedule, err := s.cronParser.Parse(fields["Cron"])
	if err != nil {
		// An unparsable expression would refire every poll; park it.
		logError("recurring_scheduler.cron."+recurringID, err)
		tx := conn.CreateTransaction()
		tx.RemoveFromSet("recurring-jobs", recurringID)
		return tx.Commit()
	}

	queue := fields["Queue"]
	if queue == "" {
		queue = "default"
	}

	invocation := &InvocationData{
		Type:           fields["Type"],
		Method:         fields["Method"],
		ParameterTypes: fields["ParameterTypes"],
		Arguments:      fields["Arguments"],
	}
	jobID, err := conn.CreateExpiredJob(invocation, map[string]string{"RecurringJobId": recurringID}, nowUTC(), time.Hour)
	if err != nil {
		return err
	}

	next := schedule.Next(nowUTC())
	tx := conn.CreateTransaction()
	tx.AddToQueue(queue, jobID)
	tx.AddToSetWithScore("recurring-jobs", recurringID, float64(next.Unix()))
	tx.SetRangeInHash("recurring-job:"+recurringID, map[string]string{
		"LastExecution": formatTime(nowUTC()),
		"LastJobId":     jobID,
	})
	if err := tx.Commit(); err != nil {
		return err
	}
	s.storage.countRecurringFired()
	return nil
}
