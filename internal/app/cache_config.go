package app

import (
	"strings"

	"github.com/charlesng35/jasamarket/internal/cache"
)

// RedisClientConfig maps the cache.redis section onto the Redis store options. The key
// prefix is stored without separators; the store adds its own.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
		Prefix:   strings.Trim(strings.TrimSpace(c.Redis.Prefix), ":"),
	}
}
