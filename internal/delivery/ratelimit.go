package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-core/internal/domain"
	"github.com/ignite/outreach-core/internal/pkg/logger"
)

// ErrRateLimited is returned when a sending identity is over its limit. The
// sequencer treats it like any transport failure: state is untouched and the
// contact is retried on a later tick.
var ErrRateLimited = errors.New("delivery: rate limit exceeded")

// RateLimit caps sends per sending identity. A zero window is unlimited.
type RateLimit struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// Enabled reports whether any window is limited.
func (l RateLimit) Enabled() bool {
	return l.PerSecond > 0 || l.PerMinute > 0 || l.PerDay > 0
}

// Lua script for atomic multi-window rate limit check.
// Checks every window before incrementing any counter.
const multiLimitLuaScript = `
local increment = tonumber(ARGV[1])
local limits = {tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4])}
local ttls = {tonumber(ARGV[5]), tonumber(ARGV[6]), tonumber(ARGV[7])}

for i = 1, 3 do
    if limits[i] > 0 then
        local current = tonumber(redis.call("GET", KEYS[i]) or "0")
        if current + increment > limits[i] then
            return {0, i, current}
        end
    end
end

local newDay = 0
for i = 1, 3 do
    local v = redis.call("INCRBY", KEYS[i], increment)
    if v == increment then
        redis.call("EXPIRE", KEYS[i], ttls[i])
    end
    newDay = v
end

return {1, 0, newDay}
`

const (
	windowSecond = 1
	windowMinute = 2
	windowDay    = 3
)

// RateLimiter counts sends in Redis with per-second, per-minute and daily
// buckets so every worker process shares the same budget.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	now    func() time.Time
}

// NewRateLimiter creates a rate limiter with a pre-compiled Lua script.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		script: redis.NewScript(multiLimitLuaScript),
		now:    time.Now,
	}
}

func (r *RateLimiter) keys(key string, now time.Time) []string {
	now = now.UTC()
	return []string{
		fmt.Sprintf("ratelimit:%s:sec:%d", key, now.Unix()),
		fmt.Sprintf("ratelimit:%s:min:%d", key, now.Unix()/60),
		fmt.Sprintf("ratelimit:%s:day:%s", key, now.Format("2006-01-02")),
	}
}

// CheckAndIncrement atomically checks every window for key and, only when
// all pass, counts one send. waitTime is how long until the exhausted
// window rolls over.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit RateLimit) (allowed bool, waitTime time.Duration, err error) {
	now := r.now()
	result, err := r.script.Run(ctx, r.redis, r.keys(key, now),
		1,
		limit.PerSecond,
		limit.PerMinute,
		limit.PerDay,
		2,     // second TTL
		120,   // minute TTL
		90000, // daily TTL (25 hours)
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("rate limit check: unexpected reply %v", result)
	}

	allowedInt, _ := result[0].(int64)
	if allowedInt == 1 {
		return true, 0, nil
	}

	window, _ := result[1].(int64)
	now = now.UTC()
	switch window {
	case windowSecond:
		waitTime = time.Second
	case windowMinute:
		waitTime = time.Duration(60-now.Second()) * time.Second
	case windowDay:
		midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
		waitTime = midnight.Sub(now)
	}
	return false, waitTime, nil
}

// Usage returns the current counters for key.
func (r *RateLimiter) Usage(ctx context.Context, key string) (map[string]int64, error) {
	keys := r.keys(key, r.now())

	pipe := r.redis.Pipeline()
	secCmd := pipe.Get(ctx, keys[0])
	minCmd := pipe.Get(ctx, keys[1])
	dayCmd := pipe.Get(ctx, keys[2])
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("rate limit usage: %w", err)
	}

	sec, _ := secCmd.Int64()
	min, _ := minCmd.Int64()
	day, _ := dayCmd.Int64()
	return map[string]int64{
		"second_current": sec,
		"minute_current": min,
		"daily_current":  day,
	}, nil
}

// RateLimitedSender applies a RateLimit per (channel, from identity) before
// handing the message to the wrapped sender.
type RateLimitedSender struct {
	next    Sender
	limiter *RateLimiter
	limit   RateLimit
	log     *logger.Logger
}

// NewRateLimitedSender wraps next. A disabled limit returns next unchanged.
func NewRateLimitedSender(next Sender, limiter *RateLimiter, limit RateLimit) Sender {
	if limiter == nil || !limit.Enabled() {
		return next
	}
	return &RateLimitedSender{next: next, limiter: limiter, limit: limit, log: logger.New("rate-limit")}
}

func (s *RateLimitedSender) Send(ctx context.Context, msg *domain.OutboundMessage) (*domain.DeliveryResult, error) {
	key := string(msg.Channel) + ":" + domain.NormalizeAddress(msg.From)
	allowed, wait, err := s.limiter.CheckAndIncrement(ctx, key, s.limit)
	if err != nil {
		// Redis trouble must not stall outreach; the provider enforces its
		// own ceiling.
		s.log.Warn("rate limit check failed, sending anyway", "channel", string(msg.Channel), "error", err)
		return s.next.Send(ctx, msg)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s (retry in %s)", ErrRateLimited, msg.Channel, wait)
	}
	return s.next.Send(ctx, msg)
}
