package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/jasamarket/internal/cache"
	apperrors "github.com/charlesng35/jasamarket/pkg/errors"
	"github.com/charlesng35/jasamarket/pkg/logger"
	"github.com/charlesng35/jasamarket/pkg/response"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// RateKeyFunc derives the bucket a request is counted against.
type RateKeyFunc func(c *gin.Context) string

// ByClientIP counts requests per client address and route.
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP() + "|" + c.FullPath()
}

// ByUser counts requests per authenticated user and route, falling back to the client address.
func ByUser(c *gin.Context) string {
	if userID := c.GetString(CtxUserIDKey); userID != "" {
		return "user:" + userID + "|" + c.FullPath()
	}
	return ByClientIP(c)
}

// RateLimitConfig tunes a RateLimit middleware instance.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Key      RateKeyFunc
}

// RateLimit limits requests per key within a fixed window. Store errors let the request through.
func RateLimit(store RateStore, cfg RateLimitConfig) gin.HandlerFunc {
	keyFn := cfg.Key
	if keyFn == nil {
		keyFn = ByClientIP
	}

	return func(c *gin.Context) {
		if store == nil || cfg.Requests <= 0 || cfg.Window <= 0 {
			c.Next()
			return
		}

		count, ttl, err := store.Increment(c.Request.Context(), "ratelimit:"+keyFn(c), cfg.Window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, cfg.Requests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > cfg.Requests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(ttl.Seconds()))))
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}

// memoryRateStore provides process-local rate limiting. It is concurrency-safe.
type memoryRateStore struct {
	mu    sync.Mutex
	data  map[string]*memoryCounter
	clock func() time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. Expired counters are
// swept every minute until ctx is cancelled.
func NewMemoryRateStore(ctx context.Context) RateStore {
	store := &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: time.Now,
	}

	go store.cleanupLoop(ctx)
	return store
}

func (s *memoryRateStore) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock()
			s.mu.Lock()
			for key, counter := range s.data {
				if now.After(counter.windowEnd) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}

	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// storeRateStore counts in a shared cache.Store (Redis or the database cache).
type storeRateStore struct {
	store cache.Store
}

// NewCacheRateStore wraps a cache store in a RateStore implementation.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
