// Package cache keeps recently fetched metadata pages in Redis.
//
// A snapshot run walks the metadata service page by page. When a run is
// repeated within a short window (a retry after a failed price stage, a
// dry-run followed by a real run) the page cache lets the paginator replay
// pages instead of hitting the rate-limited service again. Entries are
// ephemeral: every key carries a TTL and nothing here is the source of truth.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 15*time.Minute)
//
//	key := cache.CacheKey{
//		Source:      "gamma",
//		Endpoint:    "/markets",
//		QueryParams: url.Values{"limit": {"500"}, "offset": {"0"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch the page, then manager.Set(ctx, key, cache.NewEntry(body, ttl))
//	}
//
// # Metrics
//
//   - pm_cache_hits_total{source}
//   - pm_cache_misses_total{source}
//   - pm_cache_stored_bytes_total{source}
//   - pm_cache_errors_total{operation}
package cache
