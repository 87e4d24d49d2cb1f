package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix is prepended to every cache key.
const KeyPrefix = "pm:cache"

// CacheKey identifies one cached page.
type CacheKey struct {
	// Source is the upstream service label, e.g. "gamma".
	Source string

	// Endpoint is the request path, e.g. "/markets".
	Endpoint string

	// QueryParams are the request query parameters.
	QueryParams url.Values
}

// String generates a deterministic key.
//
// Example:
//
//	pm:cache:gamma:markets:active=true:limit=500:offset=0
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Source != "" {
		parts = append(parts, k.Source)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.QueryParams[name], ",")))
		}
	}

	return strings.Join(parts, ":")
}
