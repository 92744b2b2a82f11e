package authapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	errLoginRateLimited   = errors.New("login rate limited")
	errLimiterUnavailable = errors.New("rate limiter unavailable")
)

// LoginLimiter throttles login attempts per source IP with a shared Redis
// counter, so the limit holds across instances. A nil limiter disables
// throttling entirely.
type LoginLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// NewLoginLimiter creates a limiter; returns nil when redisClient is nil so
// callers can wire it unconditionally.
func NewLoginLimiter(redisClient *redis.Client, max int, window time.Duration) *LoginLimiter {
	if redisClient == nil || max <= 0 || window <= 0 {
		return nil
	}
	return &LoginLimiter{redis: redisClient, max: max, window: window}
}

// Enforce counts one attempt for ip and fails once the window's budget is
// spent. The first increment arms the window expiry.
func (l *LoginLimiter) Enforce(ctx context.Context, ip net.IP) error {
	if l == nil || ip == nil {
		return nil
	}
	key := "login:ip:" + ip.String()

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errLimiterUnavailable, err)
		}
	}
	if count > int64(l.max) {
		return errLoginRateLimited
	}
	return nil
}

// RetryAfter is the advisory delay surfaced on 429 responses.
func (l *LoginLimiter) RetryAfter() time.Duration {
	if l == nil {
		return 0
	}
	return l.window
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "too many attempts")
}
