package hangfire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDequeuedJob(t *testing.T, storage *Storage, queue, jobID string, fields map[string]string) {
	t.Helper()
	pool := storage.pool
	conn := pool.Get()
	defer conn.Close()

	_, err := conn.Do("SADD", testPrefix+"queues", queue)
	require.NoError(t, err)
	_, err = conn.Do("LPUSH", testPrefix+"queue:"+queue+":dequeued", jobID)
	require.NoError(t, err)
	for k, v := range fields {
		_, err = conn.Do("HSET", testPrefix+"job:"+jobID, k, v)
		require.NoError(t, err)
	}
}

func TestFetchedJobsWatcherRecoversTimedOutJob(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	seedDequeuedJob(t, storage, "q", "job-X", map[string]string{
		"Fetched": formatTime(time.Now().UTC().Add(-31 * time.Minute)),
	})

	watcher := newFetchedJobsWatcher(storage)
	require.NoError(t, watcher.runOnce(context.Background()))

	assert.Equal(t, 0, listSize(pool, testPrefix+"queue:q:dequeued"))
	assert.Equal(t, "job-X", listIndex(pool, testPrefix+"queue:q", 0))
	assert.Equal(t, "", hashGet(pool, testPrefix+"job:job-X", "Fetched"))
}

func TestFetchedJobsWatcherKeepsFreshJob(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	seedDequeuedJob(t, storage, "q", "job-X", map[string]string{
		"Fetched": formatTime(time.Now().UTC().Add(-1 * time.Minute)),
	})

	watcher := newFetchedJobsWatcher(storage)
	require.NoError(t, watcher.runOnce(context.Background()))

	assert.Equal(t, 1, listSize(pool, testPrefix+"queue:q:dequeued"))
	assert.Equal(t, 0, listSize(pool, testPrefix+"queue:q"))
}

func TestFetchedJobsWatcherStampsCheckedOnFirstObservation(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	// No Fetched and no Checked flag: the first pass only records that the
	// watcher has seen the job.
	seedDequeuedJob(t, storage, "q", "job-X", nil)

	watcher := newFetchedJobsWatcher(storage)
	require.NoError(t, watcher.runOnce(context.Background()))

	assert.Equal(t, 1, listSize(pool, testPrefix+"queue:q:dequeued"))
	assert.NotEmpty(t, hashGet(pool, testPrefix+"job:job-X", "Checked"))
}

func TestFetchedJobsWatcherRequeuesByCheckedTimeout(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	seedDequeuedJob(t, storage, "q", "job-X", map[string]string{
		"Checked": formatTime(time.Now().UTC().Add(-2 * time.Minute)),
	})

	watcher := newFetchedJobsWatcher(storage)
	require.NoError(t, watcher.runOnce(context.Background()))

	assert.Equal(t, 0, listSize(pool, testPrefix+"queue:q:dequeued"))
	assert.Equal(t, "job-X", listIndex(pool, testPrefix+"queue:q", 0))
	assert.Equal(t, "", hashGet(pool, testPrefix+"job:job-X", "Checked"))
}

func TestFetchedJobsWatcherSkipsLockedQueue(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	seedDequeuedJob(t, storage, "q", "job-X", map[string]string{
		"Fetched": formatTime(time.Now().UTC().Add(-31 * time.Minute)),
	})

	// Another instance holds the queue's recovery lock.
	conn := pool.Get()
	_, err := conn.Do("SET", testPrefix+"queue:q:dequeued:lock", "other-instance")
	conn.Close()
	require.NoError(t, err)

	watcher := newFetchedJobsWatcher(storage)
	require.NoError(t, watcher.runOnce(context.Background()))

	assert.Equal(t, 1, listSize(pool, testPrefix+"queue:q:dequeued"))
	assert.Equal(t, 0, listSize(pool, testPrefix+"queue:q"))
}
