// Package clob resolves bid and ask prices for outcome tokens in bulk.
//
// Every identifier yields two request items, one per side. The items are
// partitioned into batches of at most MaxBatchSize and dispatched by a
// bounded worker pool:
//
//	batcher := clob.NewBatcher(httpClient, "https://clob.polymarket.com", logger)
//	result, err := batcher.FetchPrices(ctx, identifiers, 500, 5)
//
// The batch is the unit of failure. A batch that fails after retries marks
// only its own items as errors; other batches and the run continue. When ctx
// ends before every batch has been dispatched, the remaining batches resolve
// as errors too, so every item always has a result.
//
// Results are keyed by (token id, side). Completion order is not meaningful.
package clob
