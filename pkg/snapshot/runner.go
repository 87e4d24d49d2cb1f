package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/gamma"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/rs/zerolog"
)

// Store persists the artifacts of a run. Each method returns the paths it
// wrote, keyed by kind.
type Store interface {
	gamma.PageSink
	clob.BatchSink

	WriteMarkets(ctx context.Context, records []market.MarketRecord) (map[string]string, error)
	WritePrices(ctx context.Context, rows []PricedRow) (map[string]string, error)
	WriteManifest(ctx context.Context, stats RunStats) (map[string]string, error)
}

// MetadataSource walks the metadata service.
type MetadataSource interface {
	FetchAll(ctx context.Context, opts gamma.Options, sink gamma.PageSink) (*gamma.Result, error)
}

// PriceSource resolves prices for identifiers.
type PriceSource interface {
	SetSink(sink clob.BatchSink)
	FetchPrices(ctx context.Context, ids []market.PriceIdentifier, batchSize, concurrency int) (*clob.Result, error)
}

// Options controls one run.
type Options struct {
	Date        string
	Metadata    gamma.Options
	Category    string
	BatchSize   int
	Concurrency int
	DryRun      bool

	// Timeout bounds the whole run. Batches still outstanding when it
	// expires resolve as api_error. Zero means no bound.
	Timeout time.Duration
}

// Report is the outcome of a completed run.
type Report struct {
	Stats RunStats
	Rows  []PricedRow
}

// Runner drives metadata fetch, extraction, pricing, reconciliation and
// persistence in that order.
type Runner struct {
	metadata MetadataSource
	prices   PriceSource
	store    Store
	logger   zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(metadata MetadataSource, prices PriceSource, store Store, logger zerolog.Logger) *Runner {
	return &Runner{
		metadata: metadata,
		prices:   prices,
		store:    store,
		logger:   logger,
	}
}

// Run executes one snapshot. It fails only when metadata cannot be fetched
// or an output cannot be written; pricing failures are reported in the rows.
func (r *Runner) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	agg := NewAggregator(opts.Date)
	agg.SetDryRun(opts.DryRun)
	stats := agg.Snapshot()

	r.logger.Info().
		Str("run_id", stats.RunID).
		Str("date", opts.Date).
		Bool("dry_run", opts.DryRun).
		Msg("Snapshot run started")

	meta, err := r.metadata.FetchAll(ctx, opts.Metadata, r.store)
	if err != nil {
		r.logger.Error().Err(err).Str("run_id", stats.RunID).Msg("Metadata fetch failed")
		return nil, err
	}
	agg.RecordMetadata(meta.Pages, len(meta.Records))

	records := market.FilterByCategory(meta.Records, opts.Category)
	agg.RecordFiltered(len(records))
	if opts.Category != "" {
		r.logger.Info().
			Str("category", opts.Category).
			Int("before", len(meta.Records)).
			Int("after", len(records)).
			Msg("Category filter applied")
	}

	if err := r.record(agg, func() (map[string]string, error) { return r.store.WriteMarkets(ctx, records) }); err != nil {
		return nil, fmt.Errorf("write markets: %w", err)
	}

	extracted := market.Extract(records)
	for _, a := range extracted.Anomalies {
		r.logger.Warn().
			Str("kind", string(a.Kind)).
			Str("market_id", a.MarketID).
			Int("outcomes", a.Outcomes).
			Int("token_ids", a.TokenIDs).
			Int("index", a.Index).
			Msg("Data anomaly, skipped")
	}
	agg.RecordExtraction(extracted.Stats, len(extracted.Identifiers))

	r.logger.Info().
		Int("markets", len(records)).
		Int("with_tokens", extracted.Stats.MarketsWithTokens).
		Int("tokens", len(extracted.Identifiers)).
		Int("anomalies", extracted.Stats.Anomalies()).
		Msg("Identifiers extracted")

	var rows []PricedRow
	if !opts.DryRun {
		r.prices.SetSink(r.store)
		priced, err := r.prices.FetchPrices(ctx, extracted.Identifiers, opts.BatchSize, opts.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("fetch prices: %w", err)
		}
		agg.RecordBatches(priced.Stats)

		rows = Reconcile(extracted.Identifiers, priced)
		for _, row := range rows {
			agg.RecordRow(row.Status)
		}

		if err := r.record(agg, func() (map[string]string, error) { return r.store.WritePrices(ctx, rows) }); err != nil {
			return nil, fmt.Errorf("write prices: %w", err)
		}
	}

	agg.Finish()
	if err := r.record(agg, func() (map[string]string, error) { return r.store.WriteManifest(ctx, agg.Snapshot()) }); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	final := agg.Snapshot()
	r.logger.Info().
		Str("run_id", final.RunID).
		Int("markets", final.MarketsFetched).
		Int("tokens", final.TokensDiscovered).
		Int("ok", final.OKCount).
		Int("missing", final.MissingCount).
		Int("error", final.ErrorCount).
		Float64("duration_s", final.DurationSeconds).
		Msg("Snapshot run complete")

	return &Report{Stats: final, Rows: rows}, nil
}

func (r *Runner) record(agg *Aggregator, write func() (map[string]string, error)) error {
	files, err := write()
	if err != nil {
		r.logger.Error().Err(err).Msg("Sink write failed")
		return err
	}
	for kind, path := range files {
		agg.RecordFile(kind, path)
	}
	return nil
}
