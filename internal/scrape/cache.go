package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// PageCache persists fetched page bodies keyed by URL hash.
type PageCache interface {
	GetCachedPage(ctx context.Context, urlHash string) ([]byte, error)
	SetCachedPage(ctx context.Context, urlHash string, content []byte, ttl time.Duration) error
}

// CachingFetcher serves FetchPage from a PageCache before going upstream.
// Cache errors never fail a fetch.
type CachingFetcher struct {
	next  *PageFetcher
	cache PageCache
	ttl   time.Duration
}

// NewCachingFetcher wraps next with cache. A non-positive ttl disables
// caching.
func NewCachingFetcher(next *PageFetcher, cache PageCache, ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{next: next, cache: cache, ttl: ttl}
}

// URLHash returns the cache key for rawURL.
func URLHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// FetchPage returns the cached body for rawURL or fetches and caches it.
func (c *CachingFetcher) FetchPage(ctx context.Context, rawURL string) (*Response, error) {
	if c.cache == nil || c.ttl <= 0 {
		return c.next.FetchPage(ctx, rawURL)
	}

	key := URLHash(rawURL)
	if body, err := c.cache.GetCachedPage(ctx, key); err != nil {
		zap.L().Debug("scrape: page cache read failed", zap.String("url", rawURL), zap.Error(err))
	} else if body != nil {
		return &Response{URL: rawURL, StatusCode: 200, ContentType: "text/html", Body: body}, nil
	}

	page, err := c.next.FetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetCachedPage(ctx, key, page.Body, c.ttl); err != nil {
		zap.L().Debug("scrape: page cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
	return page, nil
}

// Get passes through to the underlying fetcher; binary downloads are not
// cached.
func (c *CachingFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.next.Get(ctx, rawURL)
}
