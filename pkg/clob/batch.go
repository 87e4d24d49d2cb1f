package clob

import (
	"github.com/Sternrassler/pm-snapshot/pkg/market"
)

// MaxBatchSize is the upstream limit on items per request.
const MaxBatchSize = 500

// Side is a quote direction. BUY quotes are asks, SELL quotes are bids.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// RequestItem is one element of a prices request body.
type RequestItem struct {
	TokenID string `json:"token_id"`
	Side    Side   `json:"side"`
}

// Key identifies a price result.
type Key struct {
	TokenID string
	Side    Side
}

// Key returns the result key for the item.
func (i RequestItem) Key() Key {
	return Key{TokenID: i.TokenID, Side: i.Side}
}

// BuildRequestItems returns a BUY and a SELL item for every identifier, in
// identifier order.
func BuildRequestItems(ids []market.PriceIdentifier) []RequestItem {
	items := make([]RequestItem, 0, 2*len(ids))
	for _, id := range ids {
		items = append(items,
			RequestItem{TokenID: id.TokenID, Side: SideBuy},
			RequestItem{TokenID: id.TokenID, Side: SideSell},
		)
	}
	return items
}

// Partition splits items into ceil(len/size) consecutive chunks of at most
// size items. Chunks do not share capacity with each other.
func Partition(items []RequestItem, size int) [][]RequestItem {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	batches := make([][]RequestItem, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end:end])
	}
	return batches
}
