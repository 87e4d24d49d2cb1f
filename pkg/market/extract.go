package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceIdentifier is one priceable outcome of a market.
type PriceIdentifier struct {
	TokenID   string
	Outcome   string
	MarketID  string
	Slug      string
	Question  string
	Active    Optional[bool]
	Volume    decimal.NullDecimal
	Liquidity decimal.NullDecimal
}

// AnomalyKind names a data anomaly found during extraction.
type AnomalyKind string

const (
	// AnomalyMismatchedArrays means len(outcomes) != len(token_ids).
	AnomalyMismatchedArrays AnomalyKind = "mismatched_arrays"

	// AnomalyEmptyTokenID means a token id entry was blank.
	AnomalyEmptyTokenID AnomalyKind = "empty_token_id"
)

// Anomaly records a skipped record or entry. It is never fatal.
type Anomaly struct {
	Kind     AnomalyKind
	MarketID string
	Outcomes int
	TokenIDs int
	Index    int
}

// ExtractStats counts what Extract did with each record.
type ExtractStats struct {
	MarketsWithTokens    int
	SkippedNoTokens      int
	SkippedMismatched    int
	EmptyTokenIDs        int
	NotOrderBookTradable int
}

// Anomalies returns the number of data anomalies counted.
func (s ExtractStats) Anomalies() int {
	return s.SkippedMismatched + s.EmptyTokenIDs
}

// ExtractResult is the output of Extract.
type ExtractResult struct {
	Identifiers []PriceIdentifier
	Anomalies   []Anomaly
	Stats       ExtractStats
}

// Extract emits one PriceIdentifier per outcome index of every record whose
// Outcomes and TokenIDs have equal length. Output is ordered by record, then
// by outcome index. It performs no I/O.
func Extract(records []MarketRecord) ExtractResult {
	var res ExtractResult

	for _, rec := range records {
		if !rec.HasTokens() {
			res.Stats.SkippedNoTokens++
			continue
		}

		if len(rec.Outcomes) != len(rec.TokenIDs) {
			res.Stats.SkippedMismatched++
			res.Anomalies = append(res.Anomalies, Anomaly{
				Kind:     AnomalyMismatchedArrays,
				MarketID: rec.MarketID,
				Outcomes: len(rec.Outcomes),
				TokenIDs: len(rec.TokenIDs),
				Index:    -1,
			})
			continue
		}

		// Counted only for markets that reach pricing.
		if rec.EnableOrderBook.Valid && !rec.EnableOrderBook.Value {
			res.Stats.NotOrderBookTradable++
		}

		emitted := 0
		for i, tokenID := range rec.TokenIDs {
			tokenID = strings.TrimSpace(tokenID)
			if tokenID == "" {
				res.Stats.EmptyTokenIDs++
				res.Anomalies = append(res.Anomalies, Anomaly{
					Kind:     AnomalyEmptyTokenID,
					MarketID: rec.MarketID,
					Outcomes: len(rec.Outcomes),
					TokenIDs: len(rec.TokenIDs),
					Index:    i,
				})
				continue
			}

			res.Identifiers = append(res.Identifiers, PriceIdentifier{
				TokenID:   tokenID,
				Outcome:   rec.Outcomes[i],
				MarketID:  rec.MarketID,
				Slug:      rec.Slug,
				Question:  rec.Question,
				Active:    rec.Active,
				Volume:    rec.Volume,
				Liquidity: rec.Liquidity,
			})
			emitted++
		}

		if emitted == 0 {
			res.Stats.SkippedNoTokens++
			continue
		}
		res.Stats.MarketsWithTokens++
	}

	return res
}

// FilterByCategory keeps records whose category contains category,
// case-insensitively. An empty category keeps everything.
func FilterByCategory(records []MarketRecord, category string) []MarketRecord {
	target := strings.ToLower(strings.TrimSpace(category))
	if target == "" {
		return records
	}

	out := make([]MarketRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Category), target) {
			out = append(out, rec)
		}
	}
	return out
}
