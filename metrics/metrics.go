// Package metrics exposes prometheus counters for the storage background
// components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the counters the storage increments.
type Collector struct {
	JobsFetched            prometheus.Counter
	JobsRequeued           prometheus.Counter
	ExpiredReferencesSwept prometheus.Counter
	ScheduledJobsEnqueued  prometheus.Counter
	RecurringJobsFired     prometheus.Counter
}

// NewCollector registers the counters with reg and returns them. Pass
// prometheus.DefaultRegisterer in hosts.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		JobsFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "hangfire_jobs_fetched_total",
			Help: "Jobs handed to workers by FetchNextJob.",
		}),
		JobsRequeued: factory.NewCounter(prometheus.CounterOpts{
			Name: "hangfire_jobs_requeued_total",
			Help: "Jobs the fetched-jobs watcher reclaimed from dead workers.",
		}),
		ExpiredReferencesSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "hangfire_expired_references_swept_total",
			Help: "Dangling list entries removed by the expired-jobs watcher.",
		}),
		ScheduledJobsEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "hangfire_scheduled_jobs_enqueued_total",
			Help: "Due schedule entries moved onto queues.",
		}),
		RecurringJobsFired: factory.NewCounter(prometheus.CounterOpts{
			Name: "hangfire_recurring_jobs_fired_total",
			Help: "Recurring schedules fired.",
		}),
	}
}
