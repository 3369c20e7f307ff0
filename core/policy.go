package core

import "strings"

type CachePolicy string

const (
	ReturnCacheDataElseFetch     CachePolicy = "return_cache_data_else_fetch"
	FetchIgnoringCacheData       CachePolicy = "fetch_ignoring_cache_data"
	FetchIgnoringCacheCompletely CachePolicy = "fetch_ignoring_cache_completely"
	ReturnCacheDataDontFetch     CachePolicy = "return_cache_data_dont_fetch"
)

const DefaultCachePolicy = ReturnCacheDataElseFetch

func (p CachePolicy) Normalize() CachePolicy {
	switch CachePolicy(strings.TrimSpace(strings.ToLower(string(p)))) {
	case FetchIgnoringCacheData:
		return FetchIgnoringCacheData
	case FetchIgnoringCacheCompletely:
		return FetchIgnoringCacheCompletely
	case ReturnCacheDataDontFetch:
		return ReturnCacheDataDontFetch
	default:
		return ReturnCacheDataElseFetch
	}
}

func (p CachePolicy) ReadsCache() bool {
	switch p.Normalize() {
	case ReturnCacheDataElseFetch, ReturnCacheDataDontFetch:
		return true
	default:
		return false
	}
}

func (p CachePolicy) WritesCache() bool {
	return p.Normalize() != FetchIgnoringCacheCompletely
}

func (p CachePolicy) AllowsNetwork() bool {
	return p.Normalize() != ReturnCacheDataDontFetch
}

// ParseCachePolicy accepts the canonical names plus short CLI aliases.
func ParseCachePolicy(raw string) (CachePolicy, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", "default", "cache-first", string(ReturnCacheDataElseFetch):
		return ReturnCacheDataElseFetch, nil
	case "network-first", "fetch", string(FetchIgnoringCacheData):
		return FetchIgnoringCacheData, nil
	case "network-only", "no-cache", string(FetchIgnoringCacheCompletely):
		return FetchIgnoringCacheCompletely, nil
	case "cache-only", string(ReturnCacheDataDontFetch):
		return ReturnCacheDataDontFetch, nil
	}
	return "", NewBadInputError("core: unknown cache policy", map[string]any{"policy": raw})
}
