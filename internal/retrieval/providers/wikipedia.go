// Package providers contains concrete retrieval provider implementations.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/colonyhq/colony/internal/retrieval"
)

const (
	wikipediaName     = "wikipedia"
	wikipediaEndpoint = "https://en.wikipedia.org/w/api.php"
	wikipediaArticle  = "https://en.wikipedia.org/wiki/"
)

// Wikipedia searches the MediaWiki API. It needs no credentials, which makes
// it the default provider in a fresh deployment.
type Wikipedia struct {
	client   *http.Client
	endpoint string
}

// NewWikipedia creates a Wikipedia provider.
func NewWikipedia() *Wikipedia {
	return &Wikipedia{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: wikipediaEndpoint,
	}
}

// WikipediaFactory is the registry factory for this provider.
func WikipediaFactory() (retrieval.Provider, error) {
	return NewWikipedia(), nil
}

type wikipediaResponse struct {
	Query struct {
		Search []struct {
			Title     string `json:"title"`
			Snippet   string `json:"snippet"`
			Timestamp string `json:"timestamp"`
			WordCount int    `json:"wordcount"`
		} `json:"search"`
	} `json:"query"`
}

func (w *Wikipedia) Search(ctx context.Context, query string, timeRange retrieval.TimeRange, maxResults int) ([]retrieval.Result, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(maxResults)},
		"srprop":   {"snippet|timestamp|wordcount"},
		"format":   {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build wikipedia request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wikipedia request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wikipedia returned status %d", resp.StatusCode)
	}

	var body wikipediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode wikipedia response: %w", err)
	}

	results := make([]retrieval.Result, 0, len(body.Query.Search))
	for rank, hit := range body.Query.Search {
		results = append(results, retrieval.Result{
			URL:           wikipediaArticle + url.PathEscape(strings.ReplaceAll(hit.Title, " ", "_")),
			Title:         hit.Title,
			Summary:       stripMarkup(hit.Snippet),
			Site:          "en.wikipedia.org",
			PublishedDate: hit.Timestamp,
			Score:         rankScore(rank),
			Provider:      wikipediaName,
		})
	}
	return results, nil
}

func (w *Wikipedia) Metadata() retrieval.Metadata {
	return retrieval.Metadata{
		Name:              wikipediaName,
		RateLimit:         30,
		DailyQuota:        0,
		SupportsTimeRange: false,
		Priority:          5,
		Description:       "English Wikipedia full-text search",
	}
}

func (w *Wikipedia) HealthCheck(ctx context.Context) bool {
	params := url.Values{
		"action": {"query"},
		"meta":   {"siteinfo"},
		"format": {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return false
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

var markupPattern = regexp.MustCompile(`<[^>]+>`)

// stripMarkup removes the search-match highlight spans MediaWiki embeds in
// snippets.
func stripMarkup(s string) string {
	return strings.TrimSpace(markupPattern.ReplaceAllString(s, ""))
}

// rankScore maps result position to a descending relevance score.
func rankScore(rank int) float64 {
	score := 1.0 - float64(rank)*0.05
	if score < 0.1 {
		score = 0.1
	}
	return score
}
