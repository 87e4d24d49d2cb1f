// Package snapshot turns fetched metadata and prices into one point-in-time
// snapshot: it reconciles price results against identifiers, keeps the run
// statistics and drives the stages in order.
package snapshot

import (
	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/shopspring/decimal"
)

// Status is the final state of a priced row.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing_price"
	StatusError   Status = "api_error"
)

// PricedRow is one reconciled outcome.
type PricedRow struct {
	TokenID   string
	Outcome   string
	MarketID  string
	Slug      string
	Question  string
	Active    market.Optional[bool]
	Volume    decimal.NullDecimal
	Liquidity decimal.NullDecimal

	Bid decimal.NullDecimal // SELL quote
	Ask decimal.NullDecimal // BUY quote
	Mid decimal.NullDecimal

	Status Status
	Error  string
}

// PriceLookup returns the price result for a token and side.
type PriceLookup interface {
	Lookup(tokenID string, side clob.Side) (clob.PriceResult, bool)
}

var two = decimal.NewFromInt(2)

// Reconcile produces one row per identifier, in identifier order.
//
// An error on either side makes the row api_error. Otherwise a missing
// price on either side makes it missing_price. Mid is set only when both
// bid and ask are present.
func Reconcile(ids []market.PriceIdentifier, prices PriceLookup) []PricedRow {
	rows := make([]PricedRow, 0, len(ids))

	for _, id := range ids {
		row := PricedRow{
			TokenID:   id.TokenID,
			Outcome:   id.Outcome,
			MarketID:  id.MarketID,
			Slug:      id.Slug,
			Question:  id.Question,
			Active:    id.Active,
			Volume:    id.Volume,
			Liquidity: id.Liquidity,
		}

		ask, askOK := prices.Lookup(id.TokenID, clob.SideBuy)
		bid, bidOK := prices.Lookup(id.TokenID, clob.SideSell)

		switch {
		case askOK && ask.Err != nil:
			row.Status = StatusError
			row.Error = ask.Err.Error()
		case bidOK && bid.Err != nil:
			row.Status = StatusError
			row.Error = bid.Err.Error()
		default:
			if askOK {
				row.Ask = ask.Price
			}
			if bidOK {
				row.Bid = bid.Price
			}
			if row.Ask.Valid && row.Bid.Valid {
				row.Status = StatusOK
				row.Mid = decimal.NewNullDecimal(row.Bid.Decimal.Add(row.Ask.Decimal).Div(two))
			} else {
				row.Status = StatusMissing
			}
		}

		rows = append(rows, row)
	}

	return rows
}
