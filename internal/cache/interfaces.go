package cache

import (
	"context"
	"time"
)

// Cache holds serialized read models, such as public listing views, for a
// bounded time. The in-process MemoryCache serves single-instance
// deployments; RedisCache is shared by every replica so an invalidation on
// one instance is seen by all.
type Cache interface {
	// Get returns the stored bytes or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete drops keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// GetOrSet returns the cached value, or runs fn and stores its result.
	// An error from fn is returned and nothing is stored.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)
}

// Locker provides mutual exclusion on a named key. Lock blocks until the key
// is free or ctx is done. The returned unlock func is safe to call twice.
// ttl bounds how long a crashed holder can keep a distributed lock.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// CacheError is a sentinel error kind returned by Cache implementations.
type CacheError string

func (e CacheError) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found in cache.
const ErrCacheMiss CacheError = "cache miss"
