package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		a       string
		b       string
		sameKey bool
	}{
		{
			name:    "tracking params stripped",
			a:       "https://example.com/article?utm_source=feed&utm_campaign=x",
			b:       "https://example.com/article",
			sameKey: true,
		},
		{
			name:    "fbclid stripped",
			a:       "https://example.com/a?fbclid=abc123",
			b:       "https://example.com/a",
			sameKey: true,
		},
		{
			name:    "scheme upgraded",
			a:       "http://example.com/a",
			b:       "https://example.com/a",
			sameKey: true,
		},
		{
			name:    "fragment dropped",
			a:       "https://example.com/a#section-2",
			b:       "https://example.com/a",
			sameKey: true,
		},
		{
			name:    "case insensitive",
			a:       "https://Example.com/Article",
			b:       "https://example.com/article",
			sameKey: true,
		},
		{
			name:    "trailing slash ignored",
			a:       "https://example.com/a/",
			b:       "https://example.com/a",
			sameKey: true,
		},
		{
			name:    "meaningful params kept",
			a:       "https://example.com/a?page=1",
			b:       "https://example.com/a?page=2",
			sameKey: false,
		},
		{
			name:    "different paths",
			a:       "https://example.com/a",
			b:       "https://example.com/b",
			sameKey: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.sameKey {
				assert.Equal(t, normalizeURL(tt.a), normalizeURL(tt.b))
			} else {
				assert.NotEqual(t, normalizeURL(tt.a), normalizeURL(tt.b))
			}
		})
	}
}

func TestAggregate_DedupKeepsHigherScore(t *testing.T) {
	byProvider := map[string][]Result{
		"alpha": {
			{URL: "https://example.com/article?utm_source=alpha", Title: "from alpha", Score: 0.6},
		},
		"beta": {
			{URL: "https://example.com/article", Title: "from beta", Score: 0.9},
		},
	}

	agg := Aggregate(byProvider, SortScore, 10)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, "from beta", agg.Results[0].Title)
	assert.Equal(t, 0.9, agg.Results[0].Score)
	assert.Equal(t, 1, agg.Duplicates)
	assert.Equal(t, 2, agg.TotalFetched)
}

func TestAggregate_SortScore(t *testing.T) {
	byProvider := map[string][]Result{
		"p": {
			{URL: "https://a.example/1", Score: 0.3},
			{URL: "https://a.example/2", Score: 0.9},
			{URL: "https://a.example/3", Score: 0.6},
		},
	}

	agg := Aggregate(byProvider, SortScore, 0)
	require.Len(t, agg.Results, 3)
	assert.Equal(t, 0.9, agg.Results[0].Score)
	assert.Equal(t, 0.6, agg.Results[1].Score)
	assert.Equal(t, 0.3, agg.Results[2].Score)
}

func TestAggregate_SortLatest(t *testing.T) {
	byProvider := map[string][]Result{
		"p": {
			{URL: "https://a.example/old", PublishedDate: "2024-01-01", Score: 0.9},
			{URL: "https://a.example/new", PublishedDate: "2026-03-15", Score: 0.1},
		},
	}

	agg := Aggregate(byProvider, SortLatest, 0)
	require.Len(t, agg.Results, 2)
	assert.Equal(t, "https://a.example/new", agg.Results[0].URL)
}

func TestAggregate_SortDiverse(t *testing.T) {
	byProvider := map[string][]Result{
		"alpha": {
			{URL: "https://a.example/1", Provider: "alpha", Score: 0.9},
			{URL: "https://a.example/2", Provider: "alpha", Score: 0.8},
			{URL: "https://a.example/3", Provider: "alpha", Score: 0.7},
		},
		"beta": {
			{URL: "https://b.example/1", Provider: "beta", Score: 0.5},
		},
	}

	agg := Aggregate(byProvider, SortDiverse, 0)
	require.Len(t, agg.Results, 4)

	providers := []string{agg.Results[0].Provider, agg.Results[1].Provider}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, providers)
}

func TestAggregate_MaxResults(t *testing.T) {
	byProvider := map[string][]Result{
		"p": {
			{URL: "https://a.example/1", Score: 0.9},
			{URL: "https://a.example/2", Score: 0.8},
			{URL: "https://a.example/3", Score: 0.7},
		},
	}

	agg := Aggregate(byProvider, SortScore, 2)
	assert.Len(t, agg.Results, 2)
	assert.Equal(t, 3, agg.TotalFetched)
}

func TestAggregate_FillsProviderName(t *testing.T) {
	byProvider := map[string][]Result{
		"gamma": {{URL: "https://g.example/1", Score: 0.5}},
	}

	agg := Aggregate(byProvider, SortScore, 0)
	require.Len(t, agg.Results, 1)
	assert.Equal(t, "gamma", agg.Results[0].Provider)
	assert.Equal(t, 1, agg.ProviderCounts["gamma"])
}
