// Package metrics documents the Prometheus metrics of a snapshot run and
// exports them for batch collection. Metrics are defined in their own
// packages (client, ratelimit, cache, gamma, clob) and registered via
// promauto on the default registry.
//
// A snapshot is a short-lived process, so nothing is scraped. Instead the
// registry is written once at the end of a run in text exposition format,
// for node_exporter's textfile collector to pick up.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the registerer all pm_* metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer WriteTextfile reads from.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// WriteTextfile writes every gathered metric to path in text exposition
// format. The write is atomic.
func WriteTextfile(path string) error {
	return writeTextfile(path, Gatherer)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// HTTP Metrics (pkg/client):
//   - pm_http_requests_total{target, status} (Counter): One per attempt
//   - pm_http_request_duration_seconds{target} (Histogram): Attempt latency
//   - pm_http_response_bytes{target} (Histogram): Response payload size
//   - pm_http_errors_total{class} (Counter): Failed attempts by class
//   - pm_http_retries_total{error_class} (Counter): Retries scheduled
//   - pm_http_retry_backoff_seconds{error_class} (Histogram): Backoff waits
//   - pm_http_retry_exhausted_total{error_class} (Counter): Requests out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pm_ratelimit_acquisitions_total{host} (Counter): Permits granted
//   - pm_ratelimit_wait_seconds{host} (Histogram): Time blocked per permit
//   - pm_ratelimit_cooldowns_total{host} (Counter): Retry-After penalties applied
//   - pm_ratelimit_shared_cooldowns_total{host} (Counter): Cooldowns published to Redis
//   - pm_ratelimit_shared_cooldown_errors_total{operation} (Counter): Redis failures
//
// Cache Metrics (pkg/cache):
//   - pm_cache_hits_total{source}, pm_cache_misses_total{source} (Counter)
//   - pm_cache_stored_bytes_total{source} (Counter)
//   - pm_cache_errors_total{operation} (Counter)
//
// Snapshot Metrics (pkg/gamma, pkg/clob):
//   - pm_gamma_pages_total{source} (Counter): Pages decoded from network or cache
//   - pm_gamma_records_total (Counter): Market records collected
//   - pm_clob_batches_total{outcome} (Counter): Batches resolved ok, error or skipped
//   - pm_clob_items_total{result} (Counter): Items resolved as price, missing or error
//   - pm_clob_price_anomalies_total (Counter): Non-numeric prices
//   - pm_clob_batch_duration_seconds (Histogram): Batch dispatch to resolution
//
// Example Prometheus Queries:
//
//   # Share of price items that failed in the last run
//   pm_clob_items_total{result="error"} / ignoring(result) sum(pm_clob_items_total)
//
//   # Requests rejected with 429
//   pm_http_errors_total{class="rate_limit"}
//
//   # P95 attempt latency per target
//   histogram_quantile(0.95, rate(pm_http_request_duration_seconds_bucket[5m]))
