package retrieval

import (
	"context"
	"errors"
)

// ErrUnknownProvider is returned by the registry for names never registered.
var ErrUnknownProvider = errors.New("unknown provider")

// TimeRange restricts how far back a search may reach. Providers that do not
// support time ranges ignore it.
type TimeRange string

const (
	RangeOneDay   TimeRange = "oneDay"
	RangeOneWeek  TimeRange = "oneWeek"
	RangeOneMonth TimeRange = "oneMonth"
	RangeOneYear  TimeRange = "oneYear"
	RangeNoLimit  TimeRange = "noLimit"
)

// Result is a single retrieval hit.
type Result struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Summary       string  `json:"summary"`
	Site          string  `json:"site,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
	Score         float64 `json:"score"`
	Provider      string  `json:"provider,omitempty"`
}

// Metadata describes a provider's capabilities and limits. Zero limits mean
// unlimited.
type Metadata struct {
	Name              string
	RateLimit         int // requests per minute
	DailyQuota        int // requests per calendar day
	SupportsTimeRange bool
	Priority          int // higher tried first
	Description       string
}

// Provider is a pluggable external retrieval source. Implementations must
// treat Search as best effort: the aggregator converts any error into an
// empty result set for that provider.
type Provider interface {
	Search(ctx context.Context, query string, timeRange TimeRange, maxResults int) ([]Result, error)
	Metadata() Metadata
	HealthCheck(ctx context.Context) bool
}
