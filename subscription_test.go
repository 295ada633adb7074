package hangfire

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForJobTimesOut(t *testing.T) {
	pool := newTestPool(":6379")
	storage := testStorage(pool)

	started := time.Now()
	err := storage.Subscription().WaitForJob(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, time.Since(started) >= 100*time.Millisecond)
}

func TestWaitForJobCancelled(t *testing.T) {
	pool := newTestPool(":6379")
	storage := testStorage(pool)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := storage.Subscription().WaitForJob(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForJobWokenByEnqueue(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorage(pool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go storage.Subscription().Execute(ctx)
	time.Sleep(100 * time.Millisecond) // let the receiver subscribe

	go func() {
		time.Sleep(100 * time.Millisecond)
		tx := storage.GetConnection().CreateTransaction()
		tx.AddToQueue("critical", "my-job")
		tx.Commit()
	}()

	started := time.Now()
	err := storage.Subscription().WaitForJob(context.Background(), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, time.Since(started) < 5*time.Second, "publish should wake the waiter long before the timeout")
}

func TestFetchNextJobWokenByEnqueue(t *testing.T) {
	pool := newTestPool(":6379")
	cleanKeyspace(testPrefix, pool)
	storage := testStorageWithOptions(pool, &Options{FetchTimeout: 10 * time.Second})
	conn := storage.GetConnection()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go storage.Subscription().Execute(ctx)
	time.Sleep(100 * time.Millisecond)

	go func() {
		time.Sleep(200 * time.Millisecond)
		tx := conn.CreateTransaction()
		tx.AddToQueue("critical", "my-job")
		tx.Commit()
	}()

	started := time.Now()
	fetched, err := conn.FetchNextJob(context.Background(), []string{"critical"})
	require.NoError(t, err)
	assert.Equal(t, "my-job", fetched.JobID)
	assert.True(t, time.Since(started) < 5*time.Second)
	require.NoError(t, fetched.RemoveFromQueue())
}
