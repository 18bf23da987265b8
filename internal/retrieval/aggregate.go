package retrieval

import (
	"net/url"
	"sort"
	"strings"
)

// SortStrategy orders merged results.
type SortStrategy string

const (
	SortScore   SortStrategy = "score"   // highest score first
	SortLatest  SortStrategy = "latest"  // newest published date first
	SortDiverse SortStrategy = "diverse" // round-robin across providers
)

// Aggregated is the merged output across providers.
type Aggregated struct {
	Results        []Result       `json:"results"`
	TotalFetched   int            `json:"total_fetched"`
	Duplicates     int            `json:"duplicates"`
	ProviderCounts map[string]int `json:"provider_counts"`
}

// Aggregate merges per-provider result sets: deduplicates by normalized URL
// keeping the higher-scored copy, applies the sort strategy, and truncates
// to maxResults. maxResults <= 0 means no limit.
func Aggregate(byProvider map[string][]Result, strategy SortStrategy, maxResults int) Aggregated {
	agg := Aggregated{ProviderCounts: make(map[string]int)}

	best := make(map[string]Result)
	var order []string
	for provider, results := range byProvider {
		agg.ProviderCounts[provider] = len(results)
		agg.TotalFetched += len(results)
		for _, res := range results {
			if res.Provider == "" {
				res.Provider = provider
			}
			key := normalizeURL(res.URL)
			prev, seen := best[key]
			if !seen {
				best[key] = res
				order = append(order, key)
				continue
			}
			agg.Duplicates++
			if res.Score > prev.Score {
				best[key] = res
			}
		}
	}

	merged := make([]Result, 0, len(order))
	for _, key := range order {
		merged = append(merged, best[key])
	}

	switch strategy {
	case SortLatest:
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].PublishedDate > merged[j].PublishedDate
		})
	case SortDiverse:
		merged = roundRobin(merged)
	default:
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Score > merged[j].Score
		})
	}

	if maxResults > 0 && len(merged) > maxResults {
		merged = merged[:maxResults]
	}
	agg.Results = merged
	return agg
}

// trackingParams are stripped before comparing URLs for deduplication.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
}

// normalizeURL canonicalizes a URL for deduplication: lowercase, https
// scheme, tracking parameters removed, fragment dropped. Unparseable URLs
// fall back to the lowercased raw string.
func normalizeURL(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	u, err := url.Parse(lowered)
	if err != nil {
		return lowered
	}

	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Fragment = ""

	q := u.Query()
	for param := range q {
		if trackingParams[param] || strings.HasPrefix(param, "utm_") {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// roundRobin interleaves results provider by provider, preserving each
// provider's internal score order.
func roundRobin(results []Result) []Result {
	byProvider := make(map[string][]Result)
	var providers []string
	for _, res := range results {
		if _, ok := byProvider[res.Provider]; !ok {
			providers = append(providers, res.Provider)
		}
		byProvider[res.Provider] = append(byProvider[res.Provider], res)
	}
	for _, provider := range providers {
		group := byProvider[provider]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Score > group[j].Score
		})
	}

	interleaved := make([]Result, 0, len(results))
	for len(interleaved) < len(results) {
		for _, provider := range providers {
			if group := byProvider[provider]; len(group) > 0 {
				interleaved = append(interleaved, group[0])
				byProvider[provider] = group[1:]
			}
		}
	}
	return interleaved
}
