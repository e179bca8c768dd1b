// Package cache defines the caching contract used by the request client.
package cache

import (
	"context"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Noop is a Cacher that never hits, for callers that opt out of caching.
type Noop struct{}

func (Noop) GetCache(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (Noop) SetCache(ctx context.Context, key string, val []byte) error {
	return nil
}
