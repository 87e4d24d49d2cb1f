package clob

import (
	"fmt"
	"testing"

	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identifiers(n int) []market.PriceIdentifier {
	ids := make([]market.PriceIdentifier, n)
	for i := range ids {
		ids[i] = market.PriceIdentifier{TokenID: fmt.Sprintf("tok-%d", i), Outcome: "Yes", MarketID: fmt.Sprintf("m%d", i)}
	}
	return ids
}

func TestBuildRequestItems(t *testing.T) {
	items := BuildRequestItems(identifiers(2))

	assert.Equal(t, []RequestItem{
		{TokenID: "tok-0", Side: SideBuy},
		{TokenID: "tok-0", Side: SideSell},
		{TokenID: "tok-1", Side: SideBuy},
		{TokenID: "tok-1", Side: SideSell},
	}, items)
}

func TestPartition_CoversEveryItemOnce(t *testing.T) {
	tests := []struct {
		n, size, batches int
	}{
		{0, 500, 0},
		{1, 500, 1},
		{500, 500, 1},
		{501, 500, 2},
		{1000, 500, 2},
		{1337, 100, 14},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			items := make([]RequestItem, tt.n)
			for i := range items {
				items[i] = RequestItem{TokenID: fmt.Sprintf("t%d", i), Side: SideBuy}
			}

			batches := Partition(items, tt.size)
			require.Len(t, batches, tt.batches)

			seen := make(map[string]bool)
			for _, batch := range batches {
				assert.LessOrEqual(t, len(batch), tt.size)
				assert.NotEmpty(t, batch)
				for _, it := range batch {
					assert.False(t, seen[it.TokenID], "duplicate %s", it.TokenID)
					seen[it.TokenID] = true
				}
			}
			assert.Len(t, seen, tt.n)
		})
	}
}

func TestPartition_ChunksDoNotShareCapacity(t *testing.T) {
	items := []RequestItem{{TokenID: "a"}, {TokenID: "b"}, {TokenID: "c"}}
	batches := Partition(items, 2)

	_ = append(batches[0], RequestItem{TokenID: "x"})
	assert.Equal(t, "c", batches[1][0].TokenID)
}

func TestPartition_InvalidSize(t *testing.T) {
	assert.Nil(t, Partition([]RequestItem{{TokenID: "a"}}, 0))
}
