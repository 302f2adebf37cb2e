package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter is a sliding window limiter shared across replicas through
// Redis. Each key owns a sorted set of request timestamps; a Lua script trims,
// counts and appends atomically.
type RateLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	script      *redis.Script
	limit       int
	window      time.Duration
}

// KEYS[1] key, ARGV: now (ms), window (ms), limit, member. Returns 1 if allowed.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)

if count < limit then
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, window + 1000)
    return 1
end
return 0
`)

// NewRateLimiter allows limit requests per key within window. A limit of
// zero or less disables limiting.
func NewRateLimiter(redisClient *redis.Client, limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		redisClient: redisClient,
		logger:      logger,
		script:      slidingWindowScript,
		limit:       limit,
		window:      window,
	}
}

func rlKey(key string) string {
	return fmt.Sprintf("rl:%s", key)
}

// Allow reports whether another request for key fits in the window.
// It fails open when Redis is unreachable.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := time.Now().UnixMilli()
	result, err := rl.script.Run(ctx, rl.redisClient, []string{rlKey(key)},
		now, rl.window.Milliseconds(), rl.limit, uuid.NewString(),
	).Int64()
	if err != nil {
		rl.logger.Error("rate limiter script failed", zap.String("key", key), zap.Error(err))
		return true
	}

	if result == 0 {
		rl.logger.Debug("rate limited", zap.String("key", key), zap.Int("limit", rl.limit))
		return false
	}
	return true
}
