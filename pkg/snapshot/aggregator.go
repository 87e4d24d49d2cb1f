package snapshot

import (
	"maps"
	"sync"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/google/uuid"
)

// RunStats is the manifest record of one run.
type RunStats struct {
	RunID  string `json:"run_id"`
	Date   string `json:"date"`
	DryRun bool   `json:"dry_run"`

	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time,omitzero"`
	DurationSeconds float64   `json:"duration_seconds"`

	MetadataPages            int `json:"metadata_pages"`
	MarketsFetched           int `json:"markets_fetched"`
	MarketsAfterFilter       int `json:"markets_after_filter"`
	MarketsWithTokens        int `json:"markets_with_tokens"`
	MarketsSkippedNoTokens   int `json:"markets_skipped_no_tokens"`
	MarketsSkippedMismatched int `json:"markets_skipped_mismatched"`
	MarketsNotCLOBTradable   int `json:"markets_not_clob_tradable"`
	EmptyTokenIDs            int `json:"empty_token_ids"`
	TokensDiscovered         int `json:"tokens_discovered"`

	BatchesPlanned int `json:"batches_planned"`
	BatchesSent    int `json:"batches_sent"`
	BatchesFailed  int `json:"batches_failed"`
	BatchesSkipped int `json:"batches_skipped"`
	PriceAnomalies int `json:"price_anomalies"`

	OKCount      int `json:"ok_count"`
	MissingCount int `json:"missing_count"`
	ErrorCount   int `json:"error_count"`

	Files map[string]string `json:"files"`
}

// Aggregator accumulates RunStats as stages complete. Safe for concurrent use.
type Aggregator struct {
	mu    sync.Mutex
	stats RunStats
	now   func() time.Time
}

// NewAggregator starts a run dated date.
func NewAggregator(date string) *Aggregator {
	return newAggregator(date, time.Now)
}

func newAggregator(date string, now func() time.Time) *Aggregator {
	return &Aggregator{
		stats: RunStats{
			RunID:     uuid.NewString(),
			Date:      date,
			StartTime: now().UTC(),
			Files:     make(map[string]string),
		},
		now: now,
	}
}

// SetDryRun marks the run as metadata only.
func (a *Aggregator) SetDryRun(dry bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.DryRun = dry
}

// RecordMetadata adds the outcome of the metadata walk.
func (a *Aggregator) RecordMetadata(pages, markets int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.MetadataPages += pages
	a.stats.MarketsFetched += markets
}

// RecordFiltered adds the number of markets left after filtering.
func (a *Aggregator) RecordFiltered(markets int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.MarketsAfterFilter += markets
}

// RecordExtraction adds extractor counts and the identifiers emitted.
func (a *Aggregator) RecordExtraction(s market.ExtractStats, tokens int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.MarketsWithTokens += s.MarketsWithTokens
	a.stats.MarketsSkippedNoTokens += s.SkippedNoTokens
	a.stats.MarketsSkippedMismatched += s.SkippedMismatched
	a.stats.MarketsNotCLOBTradable += s.NotOrderBookTradable
	a.stats.EmptyTokenIDs += s.EmptyTokenIDs
	a.stats.TokensDiscovered += tokens
}

// RecordBatches adds price batch counts.
func (a *Aggregator) RecordBatches(s clob.Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.BatchesPlanned += s.BatchesPlanned
	a.stats.BatchesSent += s.BatchesSent
	a.stats.BatchesFailed += s.BatchesFailed
	a.stats.BatchesSkipped += s.BatchesSkipped
	a.stats.PriceAnomalies += s.PriceAnomalies
}

// RecordRow counts one reconciled row.
func (a *Aggregator) RecordRow(status Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch status {
	case StatusOK:
		a.stats.OKCount++
	case StatusMissing:
		a.stats.MissingCount++
	case StatusError:
		a.stats.ErrorCount++
	}
}

// RecordFile notes an output file under kind.
func (a *Aggregator) RecordFile(kind, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Files[kind] = path
}

// Finish stamps the end time. Later calls keep the first end time.
func (a *Aggregator) Finish() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.stats.EndTime.IsZero() {
		return
	}
	a.stats.EndTime = a.now().UTC()
	a.stats.DurationSeconds = a.stats.EndTime.Sub(a.stats.StartTime).Seconds()
}

// Snapshot returns a copy of the current stats.
func (a *Aggregator) Snapshot() RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Files = maps.Clone(a.stats.Files)
	return s
}
