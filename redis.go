package hangfire

import (
	"github.com/gomodule/redigo/redis"
)

// DefaultPrefix keeps every key inside one Redis Cluster hash slot: the
// cluster routes by the substring between the braces, so all core keys land
// on the slot for "hangfire". The braces are part of the key, literally.
const DefaultPrefix = "{hangfire}:"

// fetchChannelSuffix names the pub/sub channel that wakes blocked fetchers.
// Receivers treat the payload (the enqueued job ID) as a wake signal only.
const fetchChannelSuffix = "JobFetchChannel"

func redisKeyQueues(prefix string) string {
	return prefix + "queues"
}

func redisKeyQueue(prefix, queue string) string {
	return prefix + "queue:" + queue
}

func redisKeyQueueDequeued(prefix, queue string) string {
	return prefix + "queue:" + queue + ":dequeued"
}

func redisKeyQueueDequeuedLock(prefix, queue string) string {
	return prefix + "queue:" + queue + ":dequeued:lock"
}

func redisKeyJob(prefix, jobID string) string {
	return prefix + "job:" + jobID
}

func redisKeyJobState(prefix, jobID string) string {
	return prefix + "job:" + jobID + ":state"
}

func redisKeyJobHistory(prefix, jobID string) string {
	return prefix + "job:" + jobID + ":history"
}

func redisKeyServers(prefix string) string {
	return prefix + "servers"
}

func redisKeyServer(prefix, serverID string) string {
	return prefix + "server:" + serverID
}

func redisKeyServerQueues(prefix, serverID string) string {
	return prefix + "server:" + serverID + ":queues"
}

func redisKeySchedule(prefix string) string {
	return prefix + "schedule"
}

func redisKeyProcessing(prefix string) string {
	return prefix + "processing"
}

func redisKeyFailed(prefix string) string {
	return prefix + "failed"
}

func redisKeySucceeded(prefix string) string {
	return prefix + "succeeded"
}

func redisKeyDeleted(prefix string) string {
	return prefix + "deleted"
}

func redisKeyRecurringJobs(prefix string) string {
	return prefix + "recurring-jobs"
}

func redisKeyRecurringJob(prefix, recurringJobID string) string {
	return prefix + "recurring-job:" + recurringJobID
}

func redisKeyFetchChannel(prefix string) string {
	return prefix + fetchChannelSuffix
}

// KEYS[1] = lock key
// ARGV[1] = value the lock was acquired with. Only our own lock may be
// deleted; a slow holder must not release a lock that already expired and
// was re-acquired by someone else.
var redisReleaseLockScript = redis.NewScript(1, `
if redis.call('get', KEYS[1]) == ARGV[1] then
  return redis.call('del', KEYS[1])
end
return 0
`)
