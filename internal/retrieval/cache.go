package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/colonyhq/colony/pkg/storage"
)

const cachePrefix = "search-cache"

// cacheEntry is the persisted document for one fingerprint.
type cacheEntry struct {
	Results  []Result `json:"results"`
	CachedAt int64    `json:"cached_at"` // unix seconds
	TTL      int64    `json:"ttl"`       // seconds
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.Unix()-e.CachedAt > e.TTL
}

// Cache stores search results keyed by a fingerprint of the request
// parameters. Entries live in blob storage so they survive restarts, and
// expire individually by TTL.
type Cache struct {
	st         storage.Storage
	defaultTTL time.Duration
	enabled    bool
}

// NewCache creates a search cache with the given default TTL.
func NewCache(st storage.Storage, defaultTTL time.Duration, enabled bool) *Cache {
	return &Cache{
		st:         st,
		defaultTTL: defaultTTL,
		enabled:    enabled,
	}
}

// Get returns the cached results for the request, or false on a miss.
// Expired entries are deleted on the way out.
func (c *Cache) Get(ctx context.Context, query string, timeRange TimeRange, maxResults int) ([]Result, bool) {
	if !c.enabled {
		return nil, false
	}

	path := c.entryPath(query, timeRange, maxResults)
	data, err := c.st.Read(ctx, path)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.WarnContext(ctx, "dropping corrupt cache entry", "path", path, "error", err)
		_ = c.st.Delete(ctx, path)
		return nil, false
	}
	if entry.expired(time.Now()) {
		_ = c.st.Delete(ctx, path)
		return nil, false
	}
	return entry.Results, true
}

// Set stores results for the request. ttl <= 0 uses the default TTL.
func (c *Cache) Set(ctx context.Context, query string, timeRange TimeRange, maxResults int, results []Result, ttl time.Duration) {
	if !c.enabled {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	entry := cacheEntry{
		Results:  results,
		CachedAt: time.Now().Unix(),
		TTL:      int64(ttl / time.Second),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal cache entry", "error", err)
		return
	}
	if err := c.st.Write(ctx, c.entryPath(query, timeRange, maxResults), data); err != nil {
		slog.WarnContext(ctx, "failed to write cache entry", "error", err)
	}
}

// Invalidate removes the entry for the request, if any.
func (c *Cache) Invalidate(ctx context.Context, query string, timeRange TimeRange, maxResults int) {
	if !c.enabled {
		return
	}
	_ = c.st.Delete(ctx, c.entryPath(query, timeRange, maxResults))
}

// CleanupExpired scans all entries and evicts the expired or corrupt ones,
// returning how many were removed.
func (c *Cache) CleanupExpired(ctx context.Context) int {
	if !c.enabled {
		return 0
	}

	paths, err := c.st.List(ctx, cachePrefix)
	if err != nil {
		slog.WarnContext(ctx, "failed to list cache entries", "error", err)
		return 0
	}

	now := time.Now()
	removed := 0
	for _, path := range paths {
		data, err := c.st.Read(ctx, path)
		if err != nil {
			continue
		}
		var entry cacheEntry
		if err := json.Unmarshal(data, &entry); err != nil || entry.expired(now) {
			if c.st.Delete(ctx, path) == nil {
				removed++
			}
		}
	}
	return removed
}

// Stats reports entry counts for observability.
type CacheStats struct {
	Enabled bool `json:"enabled"`
	Entries int  `json:"entries"`
	Expired int  `json:"expired"`
}

func (c *Cache) Stats(ctx context.Context) CacheStats {
	stats := CacheStats{Enabled: c.enabled}
	if !c.enabled {
		return stats
	}

	paths, err := c.st.List(ctx, cachePrefix)
	if err != nil {
		return stats
	}
	now := time.Now()
	for _, path := range paths {
		stats.Entries++
		data, err := c.st.Read(ctx, path)
		if err != nil {
			stats.Expired++
			continue
		}
		var entry cacheEntry
		if err := json.Unmarshal(data, &entry); err != nil || entry.expired(now) {
			stats.Expired++
		}
	}
	return stats
}

// Fingerprint derives the deterministic cache key for a request.
func Fingerprint(query string, timeRange TimeRange, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", query, timeRange, maxResults)))
	return hex.EncodeToString(sum[:])[:16]
}

func (c *Cache) entryPath(query string, timeRange TimeRange, maxResults int) string {
	return fmt.Sprintf("%s/%s.json", cachePrefix, Fingerprint(query, timeRange, maxResults))
}
