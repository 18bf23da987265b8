package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyhq/colony/pkg/storage"
)

type stubProvider struct {
	meta    Metadata
	results []Result
	err     error
	healthy bool
	panics  bool
	calls   int64
}

func (p *stubProvider) Search(ctx context.Context, query string, timeRange TimeRange, maxResults int) ([]Result, error) {
	atomic.AddInt64(&p.calls, 1)
	if p.panics {
		panic("provider bug")
	}
	return p.results, p.err
}

func (p *stubProvider) Metadata() Metadata { return p.meta }

func (p *stubProvider) HealthCheck(ctx context.Context) bool { return p.healthy }

func (p *stubProvider) callCount() int64 { return atomic.LoadInt64(&p.calls) }

func newTestSearcher(t *testing.T, providers map[string]*stubProvider) (*Searcher, *Registry) {
	t.Helper()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	registry := NewRegistry()
	for name, p := range providers {
		p := p
		registry.Register(name, func() (Provider, error) { return p, nil })
	}

	cache := NewCache(st, time.Hour, true)
	quota := NewQuotaManager(context.Background(), st, true)
	return NewSearcher(registry, cache, quota), registry
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	p := &stubProvider{meta: Metadata{Name: "alpha"}, healthy: true}

	r.Register("alpha", func() (Provider, error) { return p, nil })
	assert.Equal(t, []string{"alpha"}, r.List())

	got, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, p, got)

	// Singleton: same instance on repeat Get.
	again, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Same(t, got, again)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.True(t, r.Unregister("alpha"))
	assert.False(t, r.Unregister("alpha"))
	assert.Empty(t, r.List())
}

func TestRegistry_GetFresh(t *testing.T) {
	r := NewRegistry()
	var built int64
	r.Register("alpha", func() (Provider, error) {
		atomic.AddInt64(&built, 1)
		return &stubProvider{healthy: true}, nil
	})

	_, err := r.Get("alpha")
	require.NoError(t, err)
	_, err = r.GetFresh("alpha")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt64(&built))
}

func TestRegistry_FactoryError(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func() (Provider, error) { return nil, errors.New("no credentials") })

	_, err := r.Get("broken")
	assert.Error(t, err)
	assert.False(t, r.HealthStatus(context.Background())["broken"])
}

func TestSearcher_CacheAvoidsProviderCalls(t *testing.T) {
	p := &stubProvider{
		meta:    Metadata{Name: "alpha", Priority: 5},
		results: []Result{{URL: "https://e.com/a", Score: 0.8}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"alpha": p})
	ctx := context.Background()

	first, err := s.Search(ctx, "query", RangeNoLimit, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.EqualValues(t, 1, p.callCount())

	second, err := s.Search(ctx, "query", RangeNoLimit, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Served from cache, no further provider call.
	assert.EqualValues(t, 1, p.callCount())
}

func TestSearcher_PriorityPolicyStopsAtFirstHit(t *testing.T) {
	high := &stubProvider{
		meta:    Metadata{Name: "high", Priority: 10},
		results: []Result{{URL: "https://h.com/a", Score: 0.9}},
		healthy: true,
	}
	low := &stubProvider{
		meta:    Metadata{Name: "low", Priority: 1},
		results: []Result{{URL: "https://l.com/a", Score: 0.5}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"high": high, "low": low})

	results, err := s.Search(context.Background(), "query", RangeNoLimit, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://h.com/a", results[0].URL)
	assert.EqualValues(t, 1, high.callCount())
	assert.EqualValues(t, 0, low.callCount())
}

func TestSearcher_PriorityPolicyFallsThrough(t *testing.T) {
	empty := &stubProvider{meta: Metadata{Name: "empty", Priority: 10}, healthy: true}
	backup := &stubProvider{
		meta:    Metadata{Name: "backup", Priority: 1},
		results: []Result{{URL: "https://b.com/a", Score: 0.4}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"empty": empty, "backup": backup})

	results, err := s.Search(context.Background(), "query", RangeNoLimit, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://b.com/a", results[0].URL)
}

func TestSearcher_AllPolicyMergesProviders(t *testing.T) {
	alpha := &stubProvider{
		meta:    Metadata{Name: "alpha", Priority: 5},
		results: []Result{{URL: "https://a.com/1", Score: 0.9}},
		healthy: true,
	}
	beta := &stubProvider{
		meta:    Metadata{Name: "beta", Priority: 5},
		results: []Result{{URL: "https://b.com/1", Score: 0.7}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"alpha": alpha, "beta": beta})
	s.SetPolicy(PolicyAll, SortScore, 0)

	results, err := s.Search(context.Background(), "query", RangeNoLimit, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.EqualValues(t, 1, alpha.callCount())
	assert.EqualValues(t, 1, beta.callCount())
}

func TestSearcher_ProviderFailureYieldsEmpty(t *testing.T) {
	failing := &stubProvider{
		meta:    Metadata{Name: "failing", Priority: 10},
		err:     errors.New("upstream down"),
		healthy: true,
	}
	panicky := &stubProvider{
		meta:    Metadata{Name: "panicky", Priority: 8},
		panics:  true,
		healthy: true,
	}
	working := &stubProvider{
		meta:    Metadata{Name: "working", Priority: 1},
		results: []Result{{URL: "https://w.com/a", Score: 0.5}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{
		"failing": failing,
		"panicky": panicky,
		"working": working,
	})

	results, err := s.Search(context.Background(), "query", RangeNoLimit, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://w.com/a", results[0].URL)
}

func TestSearcher_SkipsUnhealthyProviders(t *testing.T) {
	sick := &stubProvider{
		meta:    Metadata{Name: "sick", Priority: 10},
		results: []Result{{URL: "https://s.com/a", Score: 0.9}},
		healthy: false,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"sick": sick})

	results, err := s.Search(context.Background(), "query", RangeNoLimit, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.EqualValues(t, 0, sick.callCount())
}

func TestSearcher_QuotaExhaustedSkipsProvider(t *testing.T) {
	p := &stubProvider{
		meta:    Metadata{Name: "alpha", Priority: 5},
		results: []Result{{URL: "https://e.com/a", Score: 0.8}},
		healthy: true,
	}
	s, _ := newTestSearcher(t, map[string]*stubProvider{"alpha": p})
	s.quota.Configure("alpha", 1, 0)

	first, err := s.Search(context.Background(), "one", RangeNoLimit, 5)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Different query, so the cache cannot answer; quota blocks the call.
	second, err := s.Search(context.Background(), "two", RangeNoLimit, 5)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.EqualValues(t, 1, p.callCount())
}

func TestSearcher_EmptyQuery(t *testing.T) {
	s, _ := newTestSearcher(t, nil)
	results, err := s.Search(context.Background(), "", RangeNoLimit, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
