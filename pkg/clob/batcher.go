package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/client"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PricesPath is the bulk price endpoint.
const PricesPath = "/prices"

// Target labels price requests in logs and metrics.
const Target = "clob:" + PricesPath

var (
	// ErrBatchFailed marks every item of a batch that failed terminally.
	ErrBatchFailed = errors.New("price batch failed")

	// ErrBatchSkipped marks items of batches never sent because ctx ended.
	ErrBatchSkipped = errors.New("price batch not dispatched")
)

// Poster performs rate-limited, retried POST requests.
type Poster interface {
	Post(ctx context.Context, target, url string, body []byte) (*client.Response, error)
}

// BatchSink receives the raw response body of every batch. Failed batches
// are handed a small JSON error document instead. seq is 1-based.
type BatchSink interface {
	WriteBatch(ctx context.Context, seq int, body []byte) error
}

// PriceResult is the outcome for one (token, side).
type PriceResult struct {
	TokenID string
	Side    Side

	// Price is invalid when the service returned no usable price.
	Price decimal.NullDecimal

	// Err is set when the item's batch failed.
	Err error

	// Batch is the 1-based sequence number of the item's batch.
	Batch int
}

// Stats summarizes one FetchPrices call.
type Stats struct {
	Items          int
	BatchesPlanned int
	BatchesSent    int
	BatchesFailed  int
	BatchesSkipped int
	PriceAnomalies int
	Duration       time.Duration
}

// Result is the output of FetchPrices.
type Result struct {
	Prices map[Key]PriceResult
	Stats  Stats
}

// Lookup returns the result for token and side.
func (r *Result) Lookup(tokenID string, side Side) (PriceResult, bool) {
	pr, ok := r.Prices[Key{TokenID: tokenID, Side: side}]
	return pr, ok
}

// Batcher dispatches price batches.
type Batcher struct {
	poster  Poster
	baseURL string
	sink    BatchSink
	logger  zerolog.Logger
}

// NewBatcher creates a batcher for the pricing service at baseURL.
func NewBatcher(poster Poster, baseURL string, logger zerolog.Logger) *Batcher {
	return &Batcher{
		poster:  poster,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SetSink sets the raw batch sink. A nil sink disables raw output.
func (b *Batcher) SetSink(sink BatchSink) {
	b.sink = sink
}

// batchOutcome is what a worker reports for one batch.
type batchOutcome struct {
	seq      int
	items    []RequestItem
	body     []byte
	err      error
	sent     bool
	duration time.Duration
}

// FetchPrices resolves a price result for every request item derived from
// ids. It returns an error only for invalid arguments; upstream failures
// are reported per item.
func (b *Batcher) FetchPrices(ctx context.Context, ids []market.PriceIdentifier, batchSize, concurrency int) (*Result, error) {
	if batchSize < 1 || batchSize > MaxBatchSize {
		return nil, fmt.Errorf("batch size must be in 1..%d (got %d)", MaxBatchSize, batchSize)
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be >= 1 (got %d)", concurrency)
	}

	start := time.Now()
	items := BuildRequestItems(ids)
	batches := Partition(items, batchSize)

	res := &Result{
		Prices: make(map[Key]PriceResult, len(items)),
		Stats:  Stats{Items: len(items), BatchesPlanned: len(batches)},
	}
	if len(batches) == 0 {
		return res, nil
	}

	workers := concurrency
	if workers > len(batches) {
		workers = len(batches)
	}

	b.logger.Info().
		Int("items", len(items)).
		Int("batches", len(batches)).
		Int("workers", workers).
		Msg("Starting price batch dispatch")

	// Queue in partition order.
	queue := make(chan int, len(batches))
	for i := range batches {
		queue <- i
	}
	close(queue)

	outcomes := make(chan batchOutcome, len(batches))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go b.worker(ctx, batches, queue, outcomes, &wg, w)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Only this goroutine writes res.
	resolved := 0
	for out := range outcomes {
		b.resolve(ctx, res, out)
		resolved++

		if resolved%10 == 0 || resolved == len(batches) {
			b.logger.Info().
				Int("resolved", resolved).
				Int("total", len(batches)).
				Int("failed", res.Stats.BatchesFailed).
				Msg("Price batch progress")
		}
	}

	res.Stats.Duration = time.Since(start)
	return res, nil
}

func (b *Batcher) worker(ctx context.Context, batches [][]RequestItem, queue <-chan int, outcomes chan<- batchOutcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for idx := range queue {
		out := batchOutcome{seq: idx + 1, items: batches[idx]}

		if err := ctx.Err(); err != nil {
			out.err = fmt.Errorf("%w: %v", ErrBatchSkipped, err)
			outcomes <- out
			continue
		}

		start := time.Now()
		body, err := b.send(ctx, out.items)
		out.sent = true
		out.body = body
		out.err = err
		out.duration = time.Since(start)

		outcomes <- out
		processed++
	}

	b.logger.Debug().
		Int("worker_id", workerID).
		Int("batches_processed", processed).
		Msg("Worker completed")
}

func (b *Batcher) send(ctx context.Context, items []RequestItem) ([]byte, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	resp, err := b.poster.Post(ctx, Target, b.baseURL+PricesPath, payload)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// resolve records the results of one batch.
func (b *Batcher) resolve(ctx context.Context, res *Result, out batchOutcome) {
	var prices map[string]map[string]json.RawMessage
	if out.err == nil {
		if err := json.Unmarshal(out.body, &prices); err != nil {
			out.err = fmt.Errorf("decode response: %w", err)
		}
	}

	switch {
	case out.err == nil:
		res.Stats.BatchesSent++
		batchesTotal.WithLabelValues("ok").Inc()
		batchDuration.Observe(out.duration.Seconds())
	case !out.sent:
		res.Stats.BatchesSkipped++
		batchesTotal.WithLabelValues("skipped").Inc()
	default:
		res.Stats.BatchesSent++
		res.Stats.BatchesFailed++
		batchesTotal.WithLabelValues("error").Inc()
		batchDuration.Observe(out.duration.Seconds())
	}

	b.writeRaw(ctx, out)

	if out.err != nil {
		b.logger.Warn().
			Err(out.err).
			Int("batch", out.seq).
			Int("items", len(out.items)).
			Int("status", client.StatusCode(out.err)).
			Msg("Price batch resolved as api_error")

		batchErr := out.err
		if out.sent {
			batchErr = fmt.Errorf("%w: batch %d: %w", ErrBatchFailed, out.seq, out.err)
		}
		for _, item := range out.items {
			res.put(PriceResult{TokenID: item.TokenID, Side: item.Side, Err: batchErr, Batch: out.seq})
		}
		itemsTotal.WithLabelValues("error").Add(float64(len(out.items)))
		return
	}

	for _, item := range out.items {
		pr := PriceResult{TokenID: item.TokenID, Side: item.Side, Batch: out.seq}

		if raw, ok := prices[item.TokenID][string(item.Side)]; ok {
			price, present, valid := parsePrice(raw)
			switch {
			case valid:
				pr.Price = decimal.NewNullDecimal(price)
			case present:
				res.Stats.PriceAnomalies++
				priceAnomaliesTotal.Inc()
				b.logger.Warn().
					Str("token_id", item.TokenID).
					Str("side", string(item.Side)).
					RawJSON("value", raw).
					Msg("Non-numeric price")
			}
		}

		if pr.Price.Valid {
			itemsTotal.WithLabelValues("price").Inc()
		} else {
			itemsTotal.WithLabelValues("missing").Inc()
		}
		res.put(pr)
	}
}

// put records pr unless the existing entry for the same key takes
// precedence. A token listed under several markets can land in several
// batches; an error from any of them wins, and otherwise the lowest batch
// wins, so the result does not depend on completion order.
func (r *Result) put(pr PriceResult) {
	key := Key{TokenID: pr.TokenID, Side: pr.Side}
	if prev, ok := r.Prices[key]; ok {
		prevFailed, failed := prev.Err != nil, pr.Err != nil
		switch {
		case prevFailed && !failed:
			return
		case prevFailed == failed && prev.Batch < pr.Batch:
			return
		}
	}
	r.Prices[key] = pr
}

func (b *Batcher) writeRaw(ctx context.Context, out batchOutcome) {
	if b.sink == nil || !out.sent {
		return
	}

	body := out.body
	if out.err != nil && len(body) == 0 {
		body, _ = json.Marshal(struct {
			Error  string `json:"error"`
			Status int    `json:"status,omitempty"`
			Items  int    `json:"items"`
		}{out.err.Error(), client.StatusCode(out.err), len(out.items)})
	}

	if err := b.sink.WriteBatch(ctx, out.seq, body); err != nil {
		b.logger.Error().Err(err).Int("batch", out.seq).Msg("Failed to write raw batch")
	}
}

// parsePrice decodes a price given as a JSON string or number. present is
// false for null; valid is false when the value is not numeric.
func parsePrice(raw json.RawMessage) (price decimal.Decimal, present, valid bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.Decimal{}, false, false
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		s = strings.TrimSpace(str)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, true, false
	}
	return d, true, true
}
