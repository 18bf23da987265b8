package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/colonyhq/colony/pkg/panicerr"
)

// Policy decides how many providers a search fans out to.
type Policy string

const (
	PolicyPriority Policy = "priority" // try providers in priority order, stop at first with results
	PolicyParallel Policy = "parallel" // query the top K providers concurrently
	PolicyAll      Policy = "all"      // query every eligible provider concurrently
)

// Searcher federates queries across the registered providers, consulting the
// cache and quota manager around each request. Provider failures never fail
// a search; they contribute empty result sets.
type Searcher struct {
	registry *Registry
	cache    *Cache
	quota    *QuotaManager

	mu          sync.RWMutex
	policy      Policy
	strategy    SortStrategy
	maxParallel int
}

// NewSearcher wires the federation together. cache and quota may be nil-safe
// disabled instances but must not be nil.
func NewSearcher(registry *Registry, cache *Cache, quota *QuotaManager) *Searcher {
	return &Searcher{
		registry:    registry,
		cache:       cache,
		quota:       quota,
		policy:      PolicyPriority,
		strategy:    SortScore,
		maxParallel: 2,
	}
}

// SetPolicy updates the selection policy and sort strategy at runtime.
func (s *Searcher) SetPolicy(policy Policy, strategy SortStrategy, maxParallel int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if policy != "" {
		s.policy = policy
	}
	if strategy != "" {
		s.strategy = strategy
	}
	if maxParallel > 0 {
		s.maxParallel = maxParallel
	}
}

// Search runs a federated query. Results come from the cache when fresh;
// otherwise eligible providers are selected, queried per the policy, merged,
// and the merged set is cached.
func (s *Searcher) Search(ctx context.Context, query string, timeRange TimeRange, maxResults int) ([]Result, error) {
	if query == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	if cached, ok := s.cache.Get(ctx, query, timeRange, maxResults); ok {
		slog.DebugContext(ctx, "search cache hit", "query", query)
		return cached, nil
	}

	s.mu.RLock()
	policy, strategy, maxParallel := s.policy, s.strategy, s.maxParallel
	s.mu.RUnlock()

	eligible := s.eligibleProviders(ctx)
	if len(eligible) == 0 {
		slog.WarnContext(ctx, "no eligible providers for search", "query", query)
		return nil, nil
	}

	var selected []candidate
	switch policy {
	case PolicyAll:
		selected = eligible
	case PolicyParallel:
		if len(eligible) > maxParallel {
			selected = eligible[:maxParallel]
		} else {
			selected = eligible
		}
	default:
		return s.searchPriority(ctx, eligible, query, timeRange, maxResults, strategy)
	}

	byProvider := s.fanOut(ctx, selected, query, timeRange, maxResults)
	agg := Aggregate(byProvider, strategy, maxResults)
	if len(agg.Results) > 0 {
		s.cache.Set(ctx, query, timeRange, maxResults, agg.Results, 0)
	}
	return agg.Results, nil
}

type candidate struct {
	name     string
	provider Provider
	priority int
}

// eligibleProviders returns healthy providers ordered by descending priority.
// Quota is checked later, at consumption time.
func (s *Searcher) eligibleProviders(ctx context.Context) []candidate {
	var eligible []candidate
	for _, name := range s.registry.List() {
		p, err := s.registry.Get(name)
		if err != nil {
			slog.WarnContext(ctx, "provider unavailable", "provider", name, "error", err)
			continue
		}
		if !p.HealthCheck(ctx) {
			slog.WarnContext(ctx, "provider unhealthy, skipping", "provider", name)
			continue
		}
		eligible = append(eligible, candidate{name: name, provider: p, priority: p.Metadata().Priority})
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].priority > eligible[j].priority
	})
	return eligible
}

// searchPriority walks providers in priority order, returning the first
// non-empty result set.
func (s *Searcher) searchPriority(ctx context.Context, eligible []candidate, query string, timeRange TimeRange, maxResults int, strategy SortStrategy) ([]Result, error) {
	for _, c := range eligible {
		results := s.queryOne(ctx, c, query, timeRange, maxResults)
		if len(results) == 0 {
			continue
		}
		agg := Aggregate(map[string][]Result{c.name: results}, strategy, maxResults)
		s.cache.Set(ctx, query, timeRange, maxResults, agg.Results, 0)
		return agg.Results, nil
	}
	return nil, nil
}

// fanOut queries the selected providers concurrently.
func (s *Searcher) fanOut(ctx context.Context, selected []candidate, query string, timeRange TimeRange, maxResults int) map[string][]Result {
	var mu sync.Mutex
	byProvider := make(map[string][]Result)

	wg := conc.WaitGroup{}
	for _, c := range selected {
		c := c
		wg.Go(func() {
			results := s.queryOne(ctx, c, query, timeRange, maxResults)
			mu.Lock()
			byProvider[c.name] = results
			mu.Unlock()
		})
	}
	wg.Wait()
	return byProvider
}

// queryOne consumes quota and runs a single provider search, converting any
// failure or panic into an empty result set.
func (s *Searcher) queryOne(ctx context.Context, c candidate, query string, timeRange TimeRange, maxResults int) []Result {
	if !s.quota.CheckAndConsume(ctx, c.name, 1) {
		slog.InfoContext(ctx, "provider quota exhausted, skipping", "provider", c.name)
		return nil
	}

	start := time.Now()
	var results []Result
	err := panicerr.Safe(func() error {
		var searchErr error
		results, searchErr = c.provider.Search(ctx, query, timeRange, maxResults)
		return searchErr
	})()
	if err != nil {
		slog.WarnContext(ctx, "provider search failed",
			"provider", c.name,
			"duration", time.Since(start),
			"error", err,
		)
		return nil
	}
	return results
}
