package clob

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_clob_batches_total",
			Help: "Price batches resolved, by outcome",
		},
		[]string{"outcome"}, // "ok", "error", "skipped"
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_clob_items_total",
			Help: "Price request items resolved, by result",
		},
		[]string{"result"}, // "price", "missing", "error"
	)

	priceAnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_clob_price_anomalies_total",
			Help: "Prices present in a response but not numeric",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pm_clob_batch_duration_seconds",
			Help:    "Time from dispatch to resolution of a price batch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
)
