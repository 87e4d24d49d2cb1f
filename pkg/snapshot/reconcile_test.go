package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePrices is an in-memory PriceLookup.
type fakePrices map[clob.Key]clob.PriceResult

func (f fakePrices) Lookup(tokenID string, side clob.Side) (clob.PriceResult, bool) {
	pr, ok := f[clob.Key{TokenID: tokenID, Side: side}]
	return pr, ok
}

func (f fakePrices) price(tokenID string, side clob.Side, v string) {
	f[clob.Key{TokenID: tokenID, Side: side}] = clob.PriceResult{
		TokenID: tokenID, Side: side, Price: decimal.NewNullDecimal(decimal.RequireFromString(v)),
	}
}

func (f fakePrices) missing(tokenID string, side clob.Side) {
	f[clob.Key{TokenID: tokenID, Side: side}] = clob.PriceResult{TokenID: tokenID, Side: side}
}

func (f fakePrices) fail(tokenID string, side clob.Side) {
	f[clob.Key{TokenID: tokenID, Side: side}] = clob.PriceResult{
		TokenID: tokenID, Side: side, Err: fmt.Errorf("%w: batch 1: boom", clob.ErrBatchFailed),
	}
}

func ids(tokens ...string) []market.PriceIdentifier {
	out := make([]market.PriceIdentifier, len(tokens))
	for i, tok := range tokens {
		out[i] = market.PriceIdentifier{
			TokenID:  tok,
			Outcome:  "Outcome-" + tok,
			MarketID: "m-" + tok,
			Slug:     "slug-" + tok,
		}
	}
	return out
}

func TestReconcile_Statuses(t *testing.T) {
	prices := fakePrices{}
	prices.price("ok", clob.SideBuy, "0.62")
	prices.price("ok", clob.SideSell, "0.58")
	prices.price("half", clob.SideBuy, "0.3")
	prices.missing("half", clob.SideSell)
	prices.fail("err", clob.SideBuy)
	prices.price("err", clob.SideSell, "0.1")
	// "absent" has no results at all.

	rows := Reconcile(ids("ok", "half", "err", "absent"), prices)
	require.Len(t, rows, 4)

	assert.Equal(t, StatusOK, rows[0].Status)
	assert.Equal(t, "0.62", rows[0].Ask.Decimal.String())
	assert.Equal(t, "0.58", rows[0].Bid.Decimal.String())
	require.True(t, rows[0].Mid.Valid)
	assert.Equal(t, "0.6", rows[0].Mid.Decimal.String())

	assert.Equal(t, StatusMissing, rows[1].Status)
	assert.True(t, rows[1].Ask.Valid)
	assert.False(t, rows[1].Bid.Valid)
	assert.False(t, rows[1].Mid.Valid)

	assert.Equal(t, StatusError, rows[2].Status)
	assert.False(t, rows[2].Mid.Valid)
	assert.Contains(t, rows[2].Error, "boom")

	assert.Equal(t, StatusMissing, rows[3].Status)
}

func TestReconcile_ErrorDominatesEitherSide(t *testing.T) {
	prices := fakePrices{}
	prices.missing("a", clob.SideBuy)
	prices.fail("a", clob.SideSell)
	prices.fail("b", clob.SideBuy)
	prices.missing("b", clob.SideSell)

	rows := Reconcile(ids("a", "b"), prices)

	assert.Equal(t, StatusError, rows[0].Status)
	assert.Equal(t, StatusError, rows[1].Status)
}

func TestReconcile_PreservesIdentity(t *testing.T) {
	prices := fakePrices{}
	prices.price("a", clob.SideBuy, "0.5")
	prices.price("a", clob.SideSell, "0.4")
	prices.missing("b", clob.SideBuy)
	prices.fail("c", clob.SideSell)

	in := ids("a", "b", "c")
	rows := Reconcile(in, prices)

	for i, row := range rows {
		assert.Equal(t, in[i].TokenID, row.TokenID)
		assert.Equal(t, in[i].Outcome, row.Outcome)
		assert.Equal(t, in[i].MarketID, row.MarketID)
	}
}

func TestReconcile_MidIffBothSides(t *testing.T) {
	prices := fakePrices{}
	prices.price("both", clob.SideBuy, "0.7")
	prices.price("both", clob.SideSell, "0.6")
	prices.price("ask", clob.SideBuy, "0.7")
	prices.price("bid", clob.SideSell, "0.6")

	for _, row := range Reconcile(ids("both", "ask", "bid", "none"), prices) {
		assert.Equal(t, row.Bid.Valid && row.Ask.Valid, row.Mid.Valid, row.TokenID)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	prices := fakePrices{}
	prices.price("a", clob.SideBuy, "0.51")
	prices.price("a", clob.SideSell, "0.49")
	prices.fail("b", clob.SideBuy)
	in := ids("a", "b", "c")

	first, err := json.Marshal(Reconcile(in, prices))
	require.NoError(t, err)
	second, err := json.Marshal(Reconcile(in, prices))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestReconcile_BatchErrorIsWrapped(t *testing.T) {
	prices := fakePrices{}
	prices.fail("x", clob.SideBuy)

	row := Reconcile(ids("x"), prices)[0]
	pr, _ := prices.Lookup("x", clob.SideBuy)
	assert.True(t, errors.Is(pr.Err, clob.ErrBatchFailed))
	assert.Equal(t, pr.Err.Error(), row.Error)
}
