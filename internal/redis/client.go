package redis

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient accepts either host:port or a redis:// URL (which may carry a
// password and database number).
func NewClient(addr string) *redis.Client {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		if parsed, err := redis.ParseURL(addr); err == nil {
			opts = parsed
		}
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	opts.PoolSize = 10
	return redis.NewClient(opts)
}
