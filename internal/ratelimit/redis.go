package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-pickup-fulfillment/internal/redisx"
)

// A sorted set per key holds admitted hits scored by unix millis.
var slidingScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max    = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
  return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter shares the window across every API instance.
type RedisLimiter struct {
	rdb    redis.Scripter
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(rdb redis.Scripter, scope string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: scope, max: max, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := slidingScript.Run(ctx, l.rdb,
		[]string{fmt.Sprintf(redisx.KeyRateLimit, l.prefix, key)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.max, uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}
	return n == 1, nil
}
