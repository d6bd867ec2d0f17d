package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_api_requests_total",
	Help: "Requests issued to the backend API.",
}, []string{"method", "status"})

var requestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_api_request_errors_total",
	Help: "Backend API requests which failed after all retries.",
}, []string{"method", "kind"})

var requestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "smarter_api_request_retries_total",
	Help: "Retried attempts against the backend API.",
})

var requestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "smarter_api_request_duration_seconds",
	Help:    "Latency of backend API requests, including retries.",
	Buckets: prometheus.DefBuckets,
})
