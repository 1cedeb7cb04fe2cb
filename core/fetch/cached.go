package fetch

import (
	"context"

	"midiplayer/logger"
)

// Cache stores fetched bytes by location. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Cached serves locations from a cache before falling back to next.
// Cache failures are logged and never fail the fetch.
type Cached struct {
	next  Fetcher
	cache Cache
}

func NewCached(next Fetcher, cache Cache) *Cached {
	return &Cached{next: next, cache: cache}
}

func (c *Cached) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, err := c.cache.Get(ctx, location)
	if err != nil {
		logger.Warn("[Cached.Fetch] cache read failed", logger.String("location", location), logger.ErrorField(err))
	} else if data != nil {
		logger.Debug("[Cached.Fetch] cache hit", logger.String("location", location))
		return data, nil
	}

	data, err = c.next.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, location, data); err != nil {
		logger.Warn("[Cached.Fetch] cache write failed", logger.String("location", location), logger.ErrorField(err))
	}
	return data, nil
}
