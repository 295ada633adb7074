package health

import (
	"fmt"
	"time"

	"github.com/gocraft/health"

	"github.com/gohangfire/hangfire"
)

type QueueReporter struct {
	closed chan struct{}
}

func (r *QueueReporter) Close() error {
	close(r.closed)
	return nil
}

// NewQueueReporter periodically gauges every queue's pending and in-flight
// depth into the health job.
func NewQueueReporter(
	c *hangfire.Client,
	job *health.Job,
	d time.Duration,
) *QueueReporter {
	ch := make(chan struct{})

	go func() {
		for {
			select {
			case <-ch:
				return
			case <-time.After(d):
				job.Run(func() error {
					queues, err := c.Queues()
					if err != nil {
						return err
					}
					for _, queue := range queues {
						job.Gauge(fmt.Sprintf("job_queue.%s.pending_count", queue.Name), float64(queue.Length))
						job.Gauge(fmt.Sprintf("job_queue.%s.fetched_count", queue.Name), float64(queue.Fetched))
					}
					return nil
				})
			}
		}
	}()

	return &QueueReporter{
		closed: ch,
	}
}
