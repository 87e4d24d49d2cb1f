package gamma

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_gamma_pages_total",
			Help: "Metadata pages decoded, by source",
		},
		[]string{"source"}, // "network", "cache"
	)

	recordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_gamma_records_total",
			Help: "Market records collected from metadata pages",
		},
	)
)
