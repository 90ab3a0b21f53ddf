package cache

import (
	"context"
	"time"
)

// Store is the key/value cache shared by rate limiting, session lookups and the
// pending-verification flag. Implementations: RedisStore and DatabaseStore.
type Store interface {
	// IncrementWithTTL bumps a counter whose window starts at the first hit and
	// returns the new count with the time left in the window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Set stores value; a non-positive ttl keeps it until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get reports a miss with ok=false and a nil error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Delete(ctx context.Context, keys ...string) error
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*DatabaseStore)(nil)
)
