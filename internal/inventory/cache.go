package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const summaryCacheKey = "inventory:summary"

// SummaryCache keeps the per-division stock summary in Redis for a short TTL.
// Reservations and receipts make the summary drift within the TTL window,
// which is acceptable for the dashboard layer consuming it.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache instantiates the cache helper.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

// Get returns the cached summary, or false when absent.
func (c *SummaryCache) Get(ctx context.Context) ([]DivisionStockSummary, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, summaryCacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var summaries []DivisionStockSummary
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, false, err
	}
	return summaries, true, nil
}

// Set stores the summary with the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, summaries []DivisionStockSummary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summaries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryCacheKey, raw, c.ttl).Err()
}

// Invalidate drops the cached summary.
func (c *SummaryCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, summaryCacheKey).Err()
}
