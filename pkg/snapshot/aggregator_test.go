package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_ManifestCounts(t *testing.T) {
	tokens := make([]string, 10)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	prices := fakePrices{}
	for i, tok := range tokens {
		switch {
		case i < 7:
			prices.price(tok, clob.SideBuy, "0.6")
			prices.price(tok, clob.SideSell, "0.4")
		case i < 9:
			prices.missing(tok, clob.SideBuy)
			prices.missing(tok, clob.SideSell)
		default:
			prices.fail(tok, clob.SideBuy)
			prices.fail(tok, clob.SideSell)
		}
	}

	identifiers := ids(tokens...)
	agg := NewAggregator("2025-01-15")
	agg.RecordExtraction(market.ExtractStats{MarketsWithTokens: 5}, len(identifiers))
	for _, row := range Reconcile(identifiers, prices) {
		agg.RecordRow(row.Status)
	}
	agg.Finish()

	s := agg.Snapshot()
	assert.Equal(t, 7, s.OKCount)
	assert.Equal(t, 2, s.MissingCount)
	assert.Equal(t, 1, s.ErrorCount)
	assert.Equal(t, 10, s.TokensDiscovered)
	assert.Equal(t, 5, s.MarketsWithTokens)
}

func TestAggregator_RunIdentity(t *testing.T) {
	a := NewAggregator("2025-01-15")
	b := NewAggregator("2025-01-15")

	sa, sb := a.Snapshot(), b.Snapshot()
	_, err := uuid.Parse(sa.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, sa.RunID, sb.RunID)
	assert.Equal(t, "2025-01-15", sa.Date)
	assert.False(t, sa.StartTime.IsZero())
}

func TestAggregator_FinishOnce(t *testing.T) {
	clock := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)
	agg := newAggregator("2025-01-15", func() time.Time { return clock })

	clock = clock.Add(90 * time.Second)
	agg.Finish()
	clock = clock.Add(time.Hour)
	agg.Finish()

	s := agg.Snapshot()
	assert.Equal(t, 90.0, s.DurationSeconds)
	assert.Equal(t, time.Date(2025, 1, 15, 6, 1, 30, 0, time.UTC), s.EndTime)
}

func TestAggregator_StageCounts(t *testing.T) {
	agg := NewAggregator("2025-01-15")
	agg.RecordMetadata(3, 1137)
	agg.RecordFiltered(1100)
	agg.RecordExtraction(market.ExtractStats{
		MarketsWithTokens:    1090,
		SkippedNoTokens:      8,
		SkippedMismatched:    2,
		NotOrderBookTradable: 4,
	}, 2180)
	agg.RecordBatches(clob.Stats{BatchesPlanned: 9, BatchesSent: 9, BatchesFailed: 1, PriceAnomalies: 3})

	s := agg.Snapshot()
	assert.Equal(t, 3, s.MetadataPages)
	assert.Equal(t, 1137, s.MarketsFetched)
	assert.Equal(t, 1100, s.MarketsAfterFilter)
	assert.Equal(t, 8, s.MarketsSkippedNoTokens)
	assert.Equal(t, 2, s.MarketsSkippedMismatched)
	assert.Equal(t, 4, s.MarketsNotCLOBTradable)
	assert.Equal(t, 2180, s.TokensDiscovered)
	assert.Equal(t, 9, s.BatchesSent)
	assert.Equal(t, 1, s.BatchesFailed)
	assert.Equal(t, 3, s.PriceAnomalies)
}

func TestAggregator_SnapshotIsCopy(t *testing.T) {
	agg := NewAggregator("2025-01-15")
	agg.RecordFile("markets", "data/markets/markets_2025-01-15.csv")

	s := agg.Snapshot()
	s.Files["markets"] = "changed"
	s.OKCount = 99

	again := agg.Snapshot()
	assert.Equal(t, "data/markets/markets_2025-01-15.csv", again.Files["markets"])
	assert.Equal(t, 0, again.OKCount)
}

func TestAggregator_ConcurrentRecord(t *testing.T) {
	agg := NewAggregator("2025-01-15")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.RecordRow(StatusOK)
			agg.RecordRow(StatusError)
		}()
	}
	wg.Wait()

	s := agg.Snapshot()
	assert.Equal(t, 50, s.OKCount)
	assert.Equal(t, 50, s.ErrorCount)
}
