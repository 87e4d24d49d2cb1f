package client

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for individual HTTP attempts.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_http_requests_total",
		Help: "Total HTTP attempts by target and status",
	}, []string{"target", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_http_request_duration_seconds",
		Help:    "HTTP attempt duration in seconds by target",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"target"})

	responseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_http_response_bytes",
		Help:    "Response payload size by target",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	}, []string{"target"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_http_errors_total",
		Help: "Total failed HTTP attempts by error class",
	}, []string{"class"})
)

// Observation describes one HTTP attempt.
type Observation struct {
	Target     string
	Method     string
	Attempt    int
	StatusCode int // 0 when no response was received
	ErrorClass ErrorClass
	Err        error
	Latency    time.Duration
	Bytes      int
}

// Observer receives one Observation per attempt. Implementations must not block.
type Observer interface {
	Observe(Observation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Observation)

// Observe calls f(o).
func (f ObserverFunc) Observe(o Observation) { f(o) }

// MultiObserver fans an observation out to several observers.
type MultiObserver []Observer

// Observe forwards o to every observer.
func (m MultiObserver) Observe(o Observation) {
	for _, obs := range m {
		if obs != nil {
			obs.Observe(o)
		}
	}
}

// metricsObserver records attempts to Prometheus and the logger.
type metricsObserver struct {
	logger zerolog.Logger
}

// NewMetricsObserver returns the default observer: Prometheus metrics plus one log event per attempt.
func NewMetricsObserver(logger zerolog.Logger) Observer {
	return metricsObserver{logger: logger}
}

func (m metricsObserver) Observe(o Observation) {
	status := "network_error"
	if o.StatusCode > 0 {
		status = strconv.Itoa(o.StatusCode)
	}
	requestsTotal.WithLabelValues(o.Target, status).Inc()
	requestDuration.WithLabelValues(o.Target).Observe(o.Latency.Seconds())
	responseBytes.WithLabelValues(o.Target).Observe(float64(o.Bytes))

	if o.ErrorClass == "" {
		m.logger.Debug().
			Str("target", o.Target).
			Str("method", o.Method).
			Int("attempt", o.Attempt).
			Int("status", o.StatusCode).
			Dur("latency", o.Latency).
			Int("bytes", o.Bytes).
			Msg("Request completed")
		return
	}

	errorsTotal.WithLabelValues(string(o.ErrorClass)).Inc()
	m.logger.Warn().
		Str("target", o.Target).
		Str("method", o.Method).
		Int("attempt", o.Attempt).
		Int("status", o.StatusCode).
		Str("error_class", string(o.ErrorClass)).
		Dur("latency", o.Latency).
		Int("bytes", o.Bytes).
		Err(o.Err).
		Msg("Request failed")
}
