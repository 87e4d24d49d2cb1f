// Package gamma walks the market metadata service page by page.
//
// Pagination is offset based and the service does not report a total, so
// the walk ends only on an empty page, the page cap or the record cap. A
// short page is not treated as the last one.
package gamma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/cache"
	"github.com/Sternrassler/pm-snapshot/pkg/client"
	"github.com/Sternrassler/pm-snapshot/pkg/market"
	"github.com/rs/zerolog"
)

// MarketsPath is the metadata endpoint.
const MarketsPath = "/markets"

// Target labels metadata requests in logs and metrics.
const Target = "gamma:" + MarketsPath

// ErrMetadataFetch is returned when a page cannot be fetched or decoded.
// It aborts the run.
var ErrMetadataFetch = errors.New("metadata fetch failed")

// DefaultMaxPages bounds a walk whose Options leave MaxPages unset.
const DefaultMaxPages = 500

// Fetcher performs rate-limited, retried GET requests.
type Fetcher interface {
	Get(ctx context.Context, target, url string) (*client.Response, error)
}

// PageCache stores raw page bodies between runs.
type PageCache interface {
	Get(ctx context.Context, key cache.CacheKey) (*cache.CacheEntry, error)
	Put(ctx context.Context, key cache.CacheKey, data []byte) error
}

// PageSink receives every raw page body, including the terminating empty
// page. page is 1-based.
type PageSink interface {
	WritePage(ctx context.Context, page int, body []byte) error
}

// Options controls one pagination walk.
type Options struct {
	PageSize   int
	MaxPages   int // 0 means DefaultMaxPages
	MaxRecords int // 0 means unlimited
	ActiveOnly bool
	TagID      string
}

// Result is the outcome of FetchAll.
type Result struct {
	Records   []market.MarketRecord
	Pages     int // pages requested, including the terminating empty page
	CacheHits int
	Duration  time.Duration
}

// Paginator fetches all market records.
type Paginator struct {
	fetcher Fetcher
	baseURL string
	cache   PageCache
	logger  zerolog.Logger
}

// NewPaginator creates a paginator for the service at baseURL.
func NewPaginator(fetcher Fetcher, baseURL string, logger zerolog.Logger) *Paginator {
	return &Paginator{
		fetcher: fetcher,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// SetCache enables the page cache. A nil cache disables it.
//
// Pages are cached independently, so a walk inside the TTL of an earlier,
// interrupted walk can combine cached early offsets with live later ones.
// Keep the TTL short relative to how fast the listing shifts.
func (p *Paginator) SetCache(c PageCache) {
	p.cache = c
}

// FetchAll walks pages starting at offset 0 and returns the concatenated
// records. Any page failure aborts the walk with ErrMetadataFetch.
func (p *Paginator) FetchAll(ctx context.Context, opts Options, sink PageSink) (*Result, error) {
	if opts.PageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive (got %d)", ErrMetadataFetch, opts.PageSize)
	}

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	start := time.Now()
	res := &Result{}

	for page := 0; page < maxPages; page++ {
		offset := page * opts.PageSize
		query := p.query(opts, offset)

		body, cached, err := p.fetchPage(ctx, query)
		res.Pages++
		if err != nil {
			return nil, fmt.Errorf("%w: page %d (offset %d): %w", ErrMetadataFetch, page+1, offset, err)
		}
		if cached {
			res.CacheHits++
		}

		var records []market.MarketRecord
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, fmt.Errorf("%w: decode page %d (offset %d): %w", ErrMetadataFetch, page+1, offset, err)
		}

		source := "network"
		if cached {
			source = "cache"
		}
		pagesTotal.WithLabelValues(source).Inc()

		if sink != nil {
			if err := sink.WritePage(ctx, page+1, body); err != nil {
				return nil, fmt.Errorf("write raw page %d: %w", page+1, err)
			}
		}

		if len(records) == 0 {
			p.logger.Debug().Int("page", page+1).Int("offset", offset).Msg("Empty page, pagination complete")
			break
		}

		res.Records = append(res.Records, records...)
		recordsTotal.Add(float64(len(records)))

		p.logger.Info().
			Int("page", page+1).
			Int("offset", offset).
			Int("records", len(records)).
			Int("total", len(res.Records)).
			Bool("cached", cached).
			Msg("Metadata page fetched")

		if opts.MaxRecords > 0 && len(res.Records) >= opts.MaxRecords {
			res.Records = res.Records[:opts.MaxRecords]
			p.logger.Info().Int("max_records", opts.MaxRecords).Msg("Record cap reached")
			break
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (p *Paginator) query(opts Options, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(opts.PageSize))
	q.Set("offset", strconv.Itoa(offset))
	if opts.ActiveOnly {
		q.Set("active", "true")
		q.Set("closed", "false")
	}
	if opts.TagID != "" {
		q.Set("tag_id", opts.TagID)
	}
	return q
}

func (p *Paginator) fetchPage(ctx context.Context, query url.Values) ([]byte, bool, error) {
	key := cache.CacheKey{Source: "gamma", Endpoint: MarketsPath, QueryParams: query}

	if p.cache != nil {
		entry, err := p.cache.Get(ctx, key)
		switch {
		case err == nil:
			return entry.Data, true, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			p.logger.Warn().Err(err).Str("key", key.String()).Msg("Page cache unavailable")
		}
	}

	resp, err := p.fetcher.Get(ctx, Target, p.baseURL+MarketsPath+"?"+query.Encode())
	if err != nil {
		return nil, false, err
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, key, resp.Body); err != nil {
			p.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to cache page")
		}
	}
	return resp.Body, false, nil
}
