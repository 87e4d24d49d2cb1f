package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by source.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"source"},
	)

	// CacheMisses tracks cache misses by source.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"source"},
	)

	// CacheStoredBytes tracks bytes written to the cache.
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_stored_bytes_total",
			Help: "Total bytes written to the page cache",
		},
		[]string{"source"},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
