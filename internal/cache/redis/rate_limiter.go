package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osmowager/wagerbot/internal/domain"
)

// fixedWindowLua counts a request in the current window and reports whether
// the limit was exceeded. INCR and PEXPIRE run atomically so the first
// request in a window always sets the TTL.
const fixedWindowLua = `
local current = redis.call('INCR', KEYS[1])
if current == 1 then
    redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
    return 0
end
return 1
`

// RateLimiter implements domain.RateLimiter with a fixed window counter. It
// throttles the unauthenticated market-creation surface.
type RateLimiter struct {
	rdb         *redis.Client
	fixedWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:         c.Underlying(),
		fixedWindow: redis.NewScript(fixedWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow reports whether a request for key is permitted under limit requests
// per window. Rejected requests are counted too, which keeps a hammering
// client throttled for full windows.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.fixedWindow.Run(
		ctx,
		rl.rdb,
		[]string{rateLimitKey(key)},
		limit,
		window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	return res == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
