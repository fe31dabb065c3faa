package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/table-reservation/internal/config"
)

// takeTokenScript refills the bucket in KEYS[1] by whole intervals and
// spends one token. ARGV: now_ms, capacity, refill, interval_ms, ttl_ms.
// It replies {allowed, tokens_left, wait_ms}.
var takeTokenScript = redis.NewScript(`
local now, cap, refill, step, ttl =
	tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local tok = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local ts = tonumber(redis.call('HGET', KEYS[1], 'refilled_ms'))
if tok == nil or ts == nil then
	tok, ts = cap, now
elseif step > 0 and now > ts then
	local n = math.floor((now - ts) / step)
	tok = math.min(cap, tok + n * refill)
	ts = ts + n * step
end
local allowed, wait = 0, 0
if tok >= 1 then
	allowed, tok = 1, tok - 1
else
	wait = math.max(0, step - (now - ts))
end
redis.call('HSET', KEYS[1], 'tokens', tok, 'refilled_ms', ts)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, tok, wait}
`)

type bucketReply struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

func takeToken(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string, now time.Time) (bucketReply, error) {
	vals, err := takeTokenScript.Run(ctx, rdb, []string{key},
		now.UnixMilli(), cfg.Capacity, cfg.RefillTokens, cfg.RefillInterval.Milliseconds(), cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return bucketReply{}, err
	}
	if len(vals) != 3 {
		return bucketReply{}, fmt.Errorf("rate limiter replied %v", vals)
	}
	return bucketReply{
		allowed:    vals[0] == 1,
		remaining:  vals[1],
		retryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests per key with a token bucket kept in Redis.
// Redis errors let the request through. A nil client disables limiting.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) echo.MiddlewareFunc {
	return newTokenBucket(cfg, rdb, log, time.Now)
}

func newTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger, now func() time.Time) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			reply, err := takeToken(c.Request().Context(), rdb, cfg, key, now())
			if err != nil {
				log.WithError(err).WithField("key", key).Warn("rate limiter unavailable")
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(reply.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if reply.allowed {
				return next(c)
			}

			secs := int(math.Ceil(reply.retryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.WithFields(logrus.Fields{"key": key, "retry_after": reply.retryAfter}).Info("rate limited")
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	user := userKey(c)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", user)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", user)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", user, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", user, "route", route)
	}
	return strings.Join(parts, ":")
}
