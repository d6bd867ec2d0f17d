package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var hitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_cache_hits_total",
	Help: "Cache lookups which returned a value.",
}, []string{"backend"})

var missesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_cache_misses_total",
	Help: "Cache lookups which found no value.",
}, []string{"backend"})

var errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "smarter_cache_errors_total",
	Help: "Cache operations which failed.",
}, []string{"backend", "op"})
