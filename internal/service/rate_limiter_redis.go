package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisRateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisRateLimiter struct {
	client   redisEvaler
	prefix   string
	points   int
	duration time.Duration
	timeout  time.Duration
}

// NewRedisRateLimiter comparte el cupo entre replicas usando un script atomico.
func NewRedisRateLimiter(client *redis.Client, prefix string, points int, duration time.Duration) RateLimiter {
	if client == nil {
		return nil
	}
	return newRedisRateLimiter(client, prefix, points, duration)
}

func newRedisRateLimiter(client redisEvaler, prefix string, points int, duration time.Duration) *redisRateLimiter {
	if points <= 0 {
		points = 1
	}
	if duration <= 0 {
		duration = time.Minute
	}
	return &redisRateLimiter{
		client:   client,
		prefix:   prefix,
		points:   points,
		duration: duration,
		timeout:  500 * time.Millisecond,
	}
}

func (l *redisRateLimiter) Points() int             { return l.points }
func (l *redisRateLimiter) Duration() time.Duration { return l.duration }

func (l *redisRateLimiter) Consume(ctx context.Context, key string) (RateLimitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	redisKey := l.prefix + strings.TrimSpace(key)
	vals, err := l.client.Eval(ctx, redisRateLimitScript, []string{redisKey}, l.duration.Milliseconds()).Int64Slice()
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("rate limit eval: %w", err)
	}
	if len(vals) != 2 {
		return RateLimitResult{}, fmt.Errorf("rate limit eval: unexpected reply %v", vals)
	}
	return buildRateLimitResult(int(vals[0]), l.points, vals[1]), nil
}
