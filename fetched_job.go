package hangfire

// FetchedJob is the scoped handle returned by FetchNextJob. The caller must
// finish it exactly one way: RemoveFromQueue after successful processing, or
// Requeue to hand the job back. Close without either requeues the job, so a
// handle dropped on an unhandled error path never strands the job in the
// dequeued list.
type FetchedJob struct {
	storage *Storage

	JobID string
	Queue string

	acknowledged bool
	requeued     bool
}

func newFetchedJob(storage *Storage, jobID, queue string) *FetchedJob {
	return &FetchedJob{storage: storage, JobID: jobID, Queue: queue}
}

// RemoveFromQueue acknowledges the job: drops it from the dequeued list and
// clears the Fetched and Checked tracking flags.
func (f *FetchedJob) RemoveFromQueue() error {
	if err := f.cleanup(); err != nil {
		return err
	}
	f.acknowledged = true
	return nil
}

// Requeue pushes the job back onto the tail of its queue so it is fetched
// again, then runs the same dequeued-list cleanup as an ack.
func (f *FetchedJob) Requeue() error {
	prefix := f.storage.opts.Prefix
	conn := f.storage.pool.Get()
	defer conn.Close()

	conn.Send("RPUSH", redisKeyQueue(prefix, f.Queue), f.JobID)
	conn.Send("LREM", redisKeyQueueDequeued(prefix, f.Queue), -1, f.JobID)
	conn.Send("HDEL", redisKeyJob(prefix, f.JobID), "Fetched", "Checked")
	if _, err := conn.Do(""); err != nil {
		return storageError(err, "requeue")
	}
	f.requeued = true
	return nil
}

// Close releases the handle. If the job was neither acknowledged nor
// requeued it is requeued now.
func (f *FetchedJob) Close() error {
	if f.acknowledged || f.requeued {
		return nil
	}
	return f.Requeue()
}

func (f *FetchedJob) cleanup() error {
	prefix := f.storage.opts.Prefix
	conn := f.storage.pool.Get()
	defer conn.Close()

	conn.Send("LREM", redisKeyQueueDequeued(prefix, f.Queue), -1, f.JobID)
	conn.Send("HDEL", redisKeyJob(prefix, f.JobID), "Fetched", "Checked")
	if _, err := conn.Do(""); err != nil {
		return storageError(err, "fetched job cleanup")
	}
	return nil
}
