package hangfire

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiredJobsWatcherRemovesDanglingReferences(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	conn := pool.Get()
	_, err := conn.Do("RPUSH", testPrefix+"succeeded", "a")
	require.NoError(t, err)
	_, err = conn.Do("RPUSH", testPrefix+"succeeded", "b")
	require.NoError(t, err)
	// Only job b still has a hash; a's has expired away.
	_, err = conn.Do("HSET", testPrefix+"job:b", "State", StateSucceeded)
	require.NoError(t, err)
	conn.Close()

	watcher := newExpiredJobsWatcher(storage)
	require.NoError(t, watcher.sweep(context.Background(), "succeeded"))

	assert.Equal(t, 1, listSize(pool, testPrefix+"succeeded"))
	assert.Equal(t, "b", listIndex(pool, testPrefix+"succeeded", 0))
}

func TestExpiredJobsWatcherKeepsLiveReferences(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	conn := pool.Get()
	for _, id := range []string{"a", "b"} {
		_, err := conn.Do("RPUSH", testPrefix+"deleted", id)
		require.NoError(t, err)
		_, err = conn.Do("HSET", testPrefix+"job:"+id, "State", StateDeleted)
		require.NoError(t, err)
	}
	conn.Close()

	watcher := newExpiredJobsWatcher(storage)
	require.NoError(t, watcher.sweep(context.Background(), "deleted"))

	assert.Equal(t, 2, listSize(pool, testPrefix+"deleted"))
}

func TestExpiredJobsWatcherSweepsInBatches(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	// More entries than one batch; every odd entry dangles.
	conn := pool.Get()
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("job-%d", i)
		_, err := conn.Do("RPUSH", testPrefix+"succeeded", id)
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = conn.Do("HSET", testPrefix+"job:"+id, "State", StateSucceeded)
			require.NoError(t, err)
		}
	}
	conn.Close()

	watcher := newExpiredJobsWatcher(storage)
	require.NoError(t, watcher.sweep(context.Background(), "succeeded"))

	assert.Equal(t, 125, listSize(pool, testPrefix+"succeeded"))
}

func TestExpiredJobsWatcherEmptyList(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	watcher := newExpiredJobsWatcher(storage)
	require.NoError(t, watcher.sweep(context.Background(), "succeeded"))
	assert.Equal(t, 0, listSize(pool, testPrefix+"succeeded"))
}
