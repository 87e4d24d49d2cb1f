// Command pm-snapshot captures a daily snapshot of every prediction market
// and its outcome prices.
//
// Usage:
//
//	pm-snapshot [fetch] [flags]       run a snapshot (default)
//	pm-snapshot filter [flags]        filter a markets CSV by category
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/pm-snapshot/pkg/cache"
	"github.com/Sternrassler/pm-snapshot/pkg/client"
	"github.com/Sternrassler/pm-snapshot/pkg/clob"
	"github.com/Sternrassler/pm-snapshot/pkg/config"
	"github.com/Sternrassler/pm-snapshot/pkg/gamma"
	"github.com/Sternrassler/pm-snapshot/pkg/logging"
	"github.com/Sternrassler/pm-snapshot/pkg/metrics"
	"github.com/Sternrassler/pm-snapshot/pkg/ratelimit"
	"github.com/Sternrassler/pm-snapshot/pkg/snapshot"
	"github.com/Sternrassler/pm-snapshot/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches the subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "filter":
			return runFilter(args[1:], stdout, stderr)
		case "fetch":
			args = args[1:]
		}
	}
	return runFetch(ctx, args, stdout, stderr)
}

type fetchFlags struct {
	configPath  string
	date        string
	outdir      string
	pageSize    int
	maxPages    int
	maxRecords  int
	batchSize   int
	concurrency int
	gammaRPS    float64
	clobRPS     float64
	category    string
	activeOnly  bool
	tagID       string
	dryRun      bool
	timeout     time.Duration
	redisAddr   string
	metricsFile string
	logLevel    string
	pretty      bool
}

func runFetch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var f fetchFlags
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.date, "date", "", "snapshot date YYYY-MM-DD (default: today UTC)")
	fs.StringVar(&f.outdir, "outdir", "", "output directory")
	fs.IntVar(&f.pageSize, "page-size", 0, "metadata page size")
	fs.IntVar(&f.maxPages, "max-pages", 0, "metadata page cap")
	fs.IntVar(&f.maxRecords, "max-records", 0, "debug cap on market records")
	fs.IntVar(&f.batchSize, "batch-size", 0, "price items per batch (max 500)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "parallel price batches")
	fs.Float64Var(&f.gammaRPS, "gamma-rps", 0, "metadata requests per second")
	fs.Float64Var(&f.clobRPS, "clob-rps", 0, "price requests per second")
	fs.StringVar(&f.category, "category", "", "keep markets whose category contains this")
	fs.BoolVar(&f.activeOnly, "active-only", false, "request only active, open markets")
	fs.StringVar(&f.tagID, "tag-id", "", "metadata tag filter")
	fs.BoolVar(&f.dryRun, "dry-run", false, "fetch metadata only, skip pricing")
	fs.DurationVar(&f.timeout, "timeout", 0, "bound on total run time")
	fs.StringVar(&f.redisAddr, "redis-addr", "", "Redis address for shared cooldowns and page cache")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics here after the run")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn, error")
	fs.BoolVar(&f.pretty, "pretty", false, "human-readable logs")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	applyFetchFlags(fs, &f, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: zerolog.SyncWriter(stderr),
	})
	logger := logging.NewLogger("cmd")

	date := f.date
	if date == "" {
		date = time.Now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		fmt.Fprintf(stderr, "error: invalid --date %q: %v\n", date, err)
		return 2
	}

	runner, closeFn, err := buildRunner(ctx, cfg, date, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer closeFn()

	report, runErr := runner.Run(ctx, snapshot.Options{
		Date: date,
		Metadata: gamma.Options{
			PageSize:   cfg.Gamma.PageSize,
			MaxPages:   cfg.Gamma.MaxPages,
			MaxRecords: cfg.Gamma.MaxRecords,
			ActiveOnly: cfg.Gamma.ActiveOnly,
			TagID:      cfg.Gamma.TagID,
		},
		Category:    cfg.Output.Category,
		BatchSize:   cfg.CLOB.BatchSize,
		Concurrency: cfg.CLOB.Concurrency,
		DryRun:      cfg.Output.DryRun,
		Timeout:     cfg.Timeout,
	})

	if cfg.Output.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			logger.Warn().Err(err).Msg("Failed to write metrics file")
		}
	}

	if runErr != nil {
		if errors.Is(runErr, gamma.ErrMetadataFetch) {
			fmt.Fprintf(stderr, "error: snapshot aborted, market metadata unavailable: %v\n", runErr)
		} else {
			fmt.Fprintf(stderr, "error: snapshot failed: %v\n", runErr)
		}
		return 1
	}

	printSummary(stdout, report.Stats)
	return 0
}

// applyFetchFlags copies explicitly set flags over cfg.
func applyFetchFlags(fs *flag.FlagSet, f *fetchFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "outdir":
			cfg.Output.Dir = f.outdir
		case "page-size":
			cfg.Gamma.PageSize = f.pageSize
		case "max-pages":
			cfg.Gamma.MaxPages = f.maxPages
		case "max-records":
			cfg.Gamma.MaxRecords = f.maxRecords
		case "batch-size":
			cfg.CLOB.BatchSize = f.batchSize
		case "concurrency":
			cfg.CLOB.Concurrency = f.concurrency
		case "gamma-rps":
			cfg.Gamma.RateLimit = f.gammaRPS
		case "clob-rps":
			cfg.CLOB.RateLimit = f.clobRPS
		case "category":
			cfg.Output.Category = f.category
		case "active-only":
			cfg.Gamma.ActiveOnly = f.activeOnly
		case "tag-id":
			cfg.Gamma.TagID = f.tagID
		case "dry-run":
			cfg.Output.DryRun = f.dryRun
		case "timeout":
			cfg.Timeout = f.timeout
		case "redis-addr":
			cfg.Redis.Addr = f.redisAddr
		case "metrics-file":
			cfg.Output.MetricsFile = f.metricsFile
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "pretty":
			cfg.Log.Pretty = f.pretty
		}
	})
}

// buildRunner wires limiters, clients, optional Redis, and the store.
func buildRunner(ctx context.Context, cfg *config.Config, date string, logger zerolog.Logger) (*snapshot.Runner, func(), error) {
	closeFn := func() {}

	var (
		tracker   *ratelimit.Tracker
		pageCache *cache.Manager
	)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, continuing without shared cooldowns and page cache")
			_ = rdb.Close()
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
			tracker = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"))
			if cfg.Redis.CacheTTL > 0 {
				pageCache = cache.NewManager(rdb, cfg.Redis.CacheTTL)
			}
			closeFn = func() { _ = rdb.Close() }
		}
	}

	limiters := ratelimit.NewRegistry(tracker, logging.NewLogger("ratelimit"))

	gammaHost, err := hostOf(cfg.Gamma.BaseURL)
	if err != nil {
		return nil, closeFn, err
	}
	clobHost, err := hostOf(cfg.CLOB.BaseURL)
	if err != nil {
		return nil, closeFn, err
	}

	gammaClient, err := client.New(cfg.ClientConfig(), limiters.Register(gammaHost, cfg.Gamma.RateLimit))
	if err != nil {
		return nil, closeFn, fmt.Errorf("metadata client: %w", err)
	}
	clobClient, err := client.New(cfg.ClientConfig(), limiters.Register(clobHost, cfg.CLOB.RateLimit))
	if err != nil {
		return nil, closeFn, fmt.Errorf("price client: %w", err)
	}

	paginator := gamma.NewPaginator(gammaClient, cfg.Gamma.BaseURL, logging.NewLogger("gamma"))
	if pageCache != nil {
		paginator.SetCache(pageCache)
	}
	batcher := clob.NewBatcher(clobClient, cfg.CLOB.BaseURL, logging.NewLogger("clob"))
	st := store.New(cfg.Output.Dir, date, time.Now(), logging.NewLogger("store"))

	return snapshot.NewRunner(paginator, batcher, st, logging.NewLogger("snapshot")), closeFn, nil
}

func hostOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q", raw)
	}
	return u.Host, nil
}

func printSummary(w io.Writer, s snapshot.RunStats) {
	fmt.Fprintf(w, "Snapshot %s (%s)\n", s.Date, s.RunID)
	fmt.Fprintf(w, "  markets fetched:      %d\n", s.MarketsFetched)
	fmt.Fprintf(w, "  markets with tokens:  %d\n", s.MarketsWithTokens)
	fmt.Fprintf(w, "  skipped (no tokens):  %d\n", s.MarketsSkippedNoTokens)
	fmt.Fprintf(w, "  skipped (mismatched): %d\n", s.MarketsSkippedMismatched)
	fmt.Fprintf(w, "  tokens discovered:    %d\n", s.TokensDiscovered)
	if s.DryRun {
		fmt.Fprintln(w, "  pricing skipped (dry run)")
	} else {
		fmt.Fprintf(w, "  price batches:        %d sent, %d failed, %d skipped\n", s.BatchesSent, s.BatchesFailed, s.BatchesSkipped)
		fmt.Fprintf(w, "  ok:                   %d\n", s.OKCount)
		fmt.Fprintf(w, "  missing_price:        %d\n", s.MissingCount)
		fmt.Fprintf(w, "  api_error:            %d\n", s.ErrorCount)
	}
	fmt.Fprintf(w, "  duration:             %.1fs\n", s.DurationSeconds)
	for _, kind := range []string{"markets", "prices", "prices_latest", "manifest"} {
		if path, ok := s.Files[kind]; ok {
			fmt.Fprintf(w, "  %-21s %s\n", kind+":", path)
		}
	}
}

func runFilter(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	fs.SetOutput(stderr)
	input := fs.String("input", "", "markets CSV to read (required)")
	output := fs.String("output", "", "CSV to write (default: <input>_<category>.csv)")
	category := fs.String("category", "", "category substring to keep (required)")
	logLevel := fs.String("log-level", "info", "debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" || strings.TrimSpace(*category) == "" {
		fmt.Fprintln(stderr, "error: --input and --category are required")
		fs.Usage()
		return 2
	}

	logging.Setup(logging.Config{Level: logging.LogLevel(*logLevel), Output: zerolog.SyncWriter(stderr)})

	out := *output
	if out == "" {
		out = defaultFilterOutput(*input, *category)
	}

	n, err := store.FilterMarketsCSV(*input, out, *category, logging.NewLogger("filter"))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "wrote %d rows to %s\n", n, out)
	return 0
}

func defaultFilterOutput(input, category string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	slug := strings.Join(strings.Fields(strings.ToLower(category)), "_")
	if ext == "" {
		ext = ".csv"
	}
	return base + "_" + slug + ext
}
