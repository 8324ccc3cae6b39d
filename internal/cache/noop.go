package cache

import (
	"context"
	"time"
)

// NoOpCache never stores anything; every lookup is a miss.
// Used when CACHE_PROVIDER=none.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (c *NoOpCache) GetAnswer(ctx context.Context, key string) (*Answer, error) {
	return nil, nil
}

func (c *NoOpCache) SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error {
	return nil
}

func (c *NoOpCache) Flush(ctx context.Context) error {
	return nil
}

func (c *NoOpCache) Close() error {
	return nil
}
