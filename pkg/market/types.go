package market

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Optional is a value with an explicit presence flag.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// StringList decodes a JSON array of strings, or a JSON string containing
// such an array. Any other shape decodes to nil.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	*l = parseStringList(data)
	return nil
}

func parseStringList(data []byte) []string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil
		}
		inner = strings.TrimSpace(inner)
		if !strings.HasPrefix(inner, "[") {
			return nil
		}
		return parseStringList([]byte(inner))
	}

	if data[0] != '[' {
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		// Numeric ids are kept verbatim.
		out = append(out, string(bytes.TrimSpace(item)))
	}
	return out
}

// MarketRecord is one market from the metadata service.
type MarketRecord struct {
	MarketID    string
	Slug        string
	Question    string
	Category    string
	ConditionID string
	Active      Optional[bool]
	Closed      Optional[bool]
	EndDate     Optional[string]

	// Outcomes and TokenIDs are index-aligned when the record is valid.
	Outcomes []string
	TokenIDs []string

	Volume    decimal.NullDecimal
	Liquidity decimal.NullDecimal

	// EnableOrderBook is false for markets the pricing service does not
	// trade. Such markets are still priced.
	EnableOrderBook Optional[bool]
}

// wireMarket mirrors the metadata service's JSON.
type wireMarket struct {
	ID              json.RawMessage `json:"id"`
	Slug            string          `json:"slug"`
	Question        string          `json:"question"`
	Category        string          `json:"category"`
	ConditionID     string          `json:"conditionId"`
	Active          *bool           `json:"active"`
	Closed          *bool           `json:"closed"`
	EndDateISO      string          `json:"endDateIso"`
	EndDate         string          `json:"endDate"`
	Outcomes        StringList      `json:"outcomes"`
	ClobTokenIDs    StringList      `json:"clobTokenIds"`
	VolumeNum       json.RawMessage `json:"volumeNum"`
	LiquidityNum    json.RawMessage `json:"liquidityNum"`
	EnableOrderBook *bool           `json:"enableOrderBook"`
	Events          []struct {
		Category string `json:"category"`
	} `json:"events"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *MarketRecord) UnmarshalJSON(data []byte) error {
	var w wireMarket
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*m = MarketRecord{
		MarketID:        rawString(w.ID),
		Slug:            w.Slug,
		Question:        w.Question,
		Category:        w.Category,
		ConditionID:     w.ConditionID,
		Active:          optionalBool(w.Active),
		Closed:          optionalBool(w.Closed),
		Outcomes:        []string(w.Outcomes),
		TokenIDs:        []string(w.ClobTokenIDs),
		Volume:          nullDecimal(w.VolumeNum),
		Liquidity:       nullDecimal(w.LiquidityNum),
		EnableOrderBook: optionalBool(w.EnableOrderBook),
	}

	if m.Category == "" && len(w.Events) > 0 {
		m.Category = w.Events[0].Category
	}

	switch {
	case w.EndDateISO != "":
		m.EndDate = Some(w.EndDateISO)
	case w.EndDate != "":
		m.EndDate = Some(w.EndDate)
	}

	return nil
}

// HasTokens reports whether both outcome and token lists are non-empty.
func (m MarketRecord) HasTokens() bool {
	return len(m.Outcomes) > 0 && len(m.TokenIDs) > 0
}

// rawString renders a JSON string or number as text.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// nullDecimal parses a JSON number or numeric string; anything else is absent.
func nullDecimal(raw json.RawMessage) decimal.NullDecimal {
	s := rawString(raw)
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func optionalBool(b *bool) Optional[bool] {
	if b == nil {
		return Optional[bool]{}
	}
	return Some(*b)
}
