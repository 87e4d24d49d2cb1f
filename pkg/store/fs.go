package store

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/Sternrassler/pm-snapshot/pkg/snapshot"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Source is written to the source column of every row.
const Source = "polymarket"

var (
	marketHeader = []string{
		"pulled_at_utc", "source", "market_id", "slug", "question", "category", "condition_id",
		"active", "closed", "end_date_utc", "outcomes_json", "clob_token_ids_json",
		"volume_num", "liquidity_num", "enable_order_book",
	}

	priceHeader = []string{
		"snapshot_ts_utc", "source", "market_id", "slug", "question", "token_id", "outcome",
		"bid", "ask", "mid", "active", "status", "volume_num", "liquidity_num", "error",
	}
)

// FS is a filesystem Store for one run.
type FS struct {
	layout   Layout
	pulledAt time.Time
	logger   zerolog.Logger
}

// New creates a store rooted at root for date. pulledAt stamps every row.
func New(root, date string, pulledAt time.Time, logger zerolog.Logger) *FS {
	return &FS{
		layout:   Layout{Root: root, Date: date},
		pulledAt: pulledAt.UTC(),
		logger:   logger,
	}
}

// Layout returns the store's path layout.
func (s *FS) Layout() Layout {
	return s.layout
}

// WritePage stores a raw metadata page.
func (s *FS) WritePage(_ context.Context, page int, body []byte) error {
	return writeFile(s.layout.RawPagePath(page), body)
}

// WriteBatch stores a raw price batch response.
func (s *FS) WriteBatch(_ context.Context, seq int, body []byte) error {
	return writeFile(s.layout.RawBatchPath(seq), body)
}

// WriteMarkets writes the markets CSV.
func (s *FS) WriteMarkets(_ context.Context, records []market.MarketRecord) (map[string]string, error) {
	ts := s.timestamp()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(marketHeader)
	for _, rec := range records {
		outcomes, _ := json.Marshal(nonNil(rec.Outcomes))
		tokens, _ := json.Marshal(nonNil(rec.TokenIDs))
		_ = w.Write([]string{
			ts, Source, rec.MarketID, rec.Slug, rec.Question, rec.Category, rec.ConditionID,
			formatBool(rec.Active), formatBool(rec.Closed), rec.EndDate.Value,
			string(outcomes), string(tokens),
			formatDecimal(rec.Volume), formatDecimal(rec.Liquidity), formatBool(rec.EnableOrderBook),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode markets csv: %w", err)
	}

	path := s.layout.MarketsPath()
	if err := writeFile(path, buf.Bytes()); err != nil {
		return nil, err
	}
	s.logger.Info().Str("path", path).Int("rows", len(records)).Msg("Markets CSV written")
	return map[string]string{"markets": path}, nil
}

// WritePrices writes the dated prices CSV and replaces latest.csv with it.
func (s *FS) WritePrices(_ context.Context, rows []snapshot.PricedRow) (map[string]string, error) {
	ts := s.timestamp()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(priceHeader)
	for _, row := range rows {
		_ = w.Write([]string{
			ts, Source, row.MarketID, row.Slug, row.Question, row.TokenID, row.Outcome,
			formatDecimal(row.Bid), formatDecimal(row.Ask), formatDecimal(row.Mid),
			formatBool(row.Active), string(row.Status),
			formatDecimal(row.Volume), formatDecimal(row.Liquidity), row.Error,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("encode prices csv: %w", err)
	}

	path := s.layout.PricesPath()
	if err := writeFile(path, buf.Bytes()); err != nil {
		return nil, err
	}
	latest := s.layout.LatestPricesPath()
	if err := writeFile(latest, buf.Bytes()); err != nil {
		return nil, err
	}

	s.logger.Info().Str("path", path).Int("rows", len(rows)).Msg("Prices CSV written")
	return map[string]string{"prices": path, "prices_latest": latest}, nil
}

// WriteManifest writes the run manifest as indented JSON.
func (s *FS) WriteManifest(_ context.Context, stats snapshot.RunStats) (map[string]string, error) {
	path := s.layout.ManifestPath()
	if stats.Files == nil {
		stats.Files = make(map[string]string)
	}
	stats.Files["manifest"] = path

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := writeFile(path, append(data, '\n')); err != nil {
		return nil, err
	}

	s.logger.Info().Str("path", path).Msg("Run manifest written")
	return map[string]string{"manifest": path}, nil
}

func (s *FS) timestamp() string {
	return s.pulledAt.Format(time.RFC3339)
}

// writeFile writes data through a temp file and rename, so readers never
// see a partial file.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

func formatBool(b market.Optional[bool]) string {
	if !b.Valid {
		return ""
	}
	return strconv.FormatBool(b.Value)
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
