package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_scheduler_polls_total",
	Help: "Poll iterations per scheduler.",
}, []string{"scheduler"})

var jobsQueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_scheduler_jobs_queued_total",
	Help: "Jobs claimed into the in-flight set.",
}, []string{"scheduler"})

var jobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_scheduler_jobs_completed_total",
	Help: "Jobs which executed and were marked done.",
}, []string{"scheduler"})

var jobsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_scheduler_jobs_failed_total",
	Help: "Jobs which failed after delivery and retries.",
}, []string{"scheduler"})

var channelSendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_scheduler_channel_sends_total",
	Help: "Per-channel message deliveries.",
}, []string{"scheduler", "outcome"})
