package hangfire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	opts.applyDefaults()

	assert.Equal(t, DefaultPrefix, opts.Prefix)
	assert.Equal(t, 30*time.Minute, opts.InvisibilityTimeout)
	assert.Equal(t, 3*time.Minute, opts.FetchTimeout)
	assert.Equal(t, time.Hour, opts.ExpiryCheckInterval)
	assert.Equal(t, 499, opts.SucceededListSize)
	assert.Equal(t, 499, opts.DeletedListSize)
	assert.Equal(t, time.Minute, opts.CheckedTimeout)
	assert.Equal(t, time.Minute, opts.FetchedLockTimeout)
	assert.Equal(t, time.Minute, opts.SleepTimeout)
}

func TestOptionsOverridesSurvive(t *testing.T) {
	opts := Options{
		Prefix:              "{custom}:",
		InvisibilityTimeout: 5 * time.Minute,
		SucceededListSize:   10,
	}
	opts.applyDefaults()

	assert.Equal(t, "{custom}:", opts.Prefix)
	assert.Equal(t, 5*time.Minute, opts.InvisibilityTimeout)
	assert.Equal(t, 10, opts.SucceededListSize)
	assert.Equal(t, 499, opts.DeletedListSize)
}

func TestStorageLifoQueues(t *testing.T) {
	pool := newTestPool(":6379")
	storage := NewStorage(pool, &Options{LifoQueues: []string{"bulk", "reports"}})

	assert.True(t, storage.isLifoQueue("bulk"))
	assert.True(t, storage.isLifoQueue("reports"))
	assert.False(t, storage.isLifoQueue("critical"))
}

func TestStorageComponents(t *testing.T) {
	pool := newTestPool(":6379")
	storage := NewStorage(pool, nil)

	components := storage.Components()
	assert.Len(t, components, 5)
	assert.Equal(t, storage.Subscription(), components[0])
}

func TestDefaultPrefixKeepsHashTag(t *testing.T) {
	// Redis Cluster routes by the {hangfire} substring; losing the braces
	// would scatter the keys across slots and break the pipelined
	// transactions.
	assert.Equal(t, "{hangfire}:", DefaultPrefix)
	assert.Equal(t, "{hangfire}:queue:critical", redisKeyQueue(DefaultPrefix, "critical"))
	assert.Equal(t, "{hangfire}:job:abc", redisKeyJob(DefaultPrefix, "abc"))
	assert.Equal(t, "{hangfire}:JobFetchChannel", redisKeyFetchChannel(DefaultPrefix))
}
