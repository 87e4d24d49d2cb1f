// Package store writes snapshot artifacts to a dated directory tree:
//
//	<root>/markets/markets_<date>.csv
//	<root>/prices/prices_<date>.csv
//	<root>/prices/latest.csv
//	<root>/raw/gamma/page_<NNNN>_<date>.json
//	<root>/raw/clob/prices_batches/<date>/batch_<NNNN>.json
//	<root>/run/run_manifest_<date>.json
package store

import (
	"fmt"
	"path/filepath"
)

// Layout resolves artifact paths for one run date.
type Layout struct {
	Root string
	Date string
}

func (l Layout) MarketsPath() string {
	return filepath.Join(l.Root, "markets", fmt.Sprintf("markets_%s.csv", l.Date))
}

func (l Layout) PricesPath() string {
	return filepath.Join(l.Root, "prices", fmt.Sprintf("prices_%s.csv", l.Date))
}

func (l Layout) LatestPricesPath() string {
	return filepath.Join(l.Root, "prices", "latest.csv")
}

func (l Layout) RawPagePath(page int) string {
	return filepath.Join(l.Root, "raw", "gamma", fmt.Sprintf("page_%04d_%s.json", page, l.Date))
}

func (l Layout) RawBatchPath(seq int) string {
	return filepath.Join(l.Root, "raw", "clob", "prices_batches", l.Date, fmt.Sprintf("batch_%04d.json", seq))
}

func (l Layout) ManifestPath() string {
	return filepath.Join(l.Root, "run", fmt.Sprintf("run_manifest_%s.json", l.Date))
}
