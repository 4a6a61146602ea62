package store

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/spec-search/internal/metrics"
	"github.com/sells-group/spec-search/internal/model"
)

// ResponseCache stores successful SearchResponses. Cache failures are
// logged and treated as misses; they never fail a request.
type ResponseCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Collector
}

// NewResponseCache wraps s. m may be nil.
func NewResponseCache(s Store, ttl time.Duration, m *metrics.Collector) *ResponseCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResponseCache{store: s, ttl: ttl, metrics: m}
}

// Lookup returns the cached response for key, if any.
func (c *ResponseCache) Lookup(ctx context.Context, namespace string, key any) (*model.SearchResponse, bool) {
	k, err := Key(namespace, key)
	if err != nil {
		c.fail("key", err)
		return nil, false
	}

	raw, err := c.store.Get(ctx, k)
	if err != nil {
		c.fail("get", err)
		return nil, false
	}
	if raw == nil {
		c.metrics.CacheLookup(metrics.CacheMiss)
		return nil, false
	}

	var resp model.SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Failed() {
		c.fail("decode", err)
		return nil, false
	}
	c.metrics.CacheLookup(metrics.CacheHit)
	return &resp, true
}

// Save stores resp under key unless it is an error response.
func (c *ResponseCache) Save(ctx context.Context, namespace string, key any, resp *model.SearchResponse) {
	if resp == nil || resp.Failed() {
		return
	}
	k, err := Key(namespace, key)
	if err != nil {
		c.fail("key", err)
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		c.fail("encode", err)
		return
	}
	if err := c.store.Set(ctx, k, raw, c.ttl); err != nil {
		c.fail("set", err)
	}
}

func (c *ResponseCache) fail(op string, err error) {
	c.metrics.CacheLookup(metrics.CacheError)
	zap.L().Warn("store: cache "+op+" failed", zap.Error(err))
}
