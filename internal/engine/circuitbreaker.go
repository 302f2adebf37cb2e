package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Circuit breaker states
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker tracks the health of each email provider in a Redis hash so
// that every API replica sees the same state.
//
// - Closed: sends proceed; consecutive failures are counted.
// - Open: a new dispatch is refused until the cooldown has elapsed.
// - Half-Open: the next dispatch is let through; a success closes the
//   circuit, a failure opens it again.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *zap.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState is the externally visible state of one provider.
type CircuitBreakerState struct {
	Provider     string `json:"provider"`
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

func NewCircuitBreaker(redisClient *redis.Client, failureThreshold int, cooldown time.Duration, logger *zap.Logger) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 20
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: failureThreshold,
		cooldownPeriod:   cooldown,
	}
}

func cbKey(provider string) string {
	return fmt.Sprintf("cb:provider:%s", provider)
}

func (cb *CircuitBreaker) cooledDown(lastFailedAt int64) bool {
	return time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds())
}

// AllowRequest reports the provider's state and whether a dispatch may start.
// A Redis error leaves the circuit closed.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, provider string) (string, bool) {
	key := cbKey(provider)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		cb.logger.Warn("circuit breaker state unavailable", zap.String("provider", provider), zap.Error(err))
		return StateClosed, true
	}
	if len(data) == 0 {
		return StateClosed, true
	}

	switch data["state"] {
	case StateOpen:
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if !cb.cooledDown(lastFailedAt) {
			return StateOpen, false
		}
		cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
		cb.logger.Info("circuit breaker half-open", zap.String("provider", provider))
		return StateHalfOpen, true

	case StateHalfOpen:
		return StateHalfOpen, true

	default:
		return StateClosed, true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, provider string) {
	key := cbKey(provider)

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()
	if state == StateClosed {
		cb.redisClient.HSet(ctx, key, "failures", 0)
		return
	}

	cb.redisClient.HSet(ctx, key,
		"state", StateClosed,
		"failures", 0,
	)

	if state == StateHalfOpen || state == StateOpen {
		cb.logger.Info("circuit breaker closed (recovered)", zap.String("provider", provider))
	}
}

// RecordFailure counts a failed submission and opens the circuit once the
// threshold of consecutive failures is reached.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, provider string) {
	key := cbKey(provider)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker failure",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return
	}

	cb.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case state == StateOpen:
		// already open; last_failed_at was pushed forward
	case state == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (half-open dispatch failed)",
			zap.String("provider", provider),
		)
	case failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened",
			zap.String("provider", provider),
			zap.Int64("failures", failures),
			zap.Int("threshold", cb.failureThreshold),
		)
	case state == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the provider's circuit state for the dashboard.
func (cb *CircuitBreaker) GetState(ctx context.Context, provider string) CircuitBreakerState {
	key := cbKey(provider)
	result := CircuitBreakerState{Provider: provider, State: StateClosed}

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return result
	}

	result.Failures, _ = strconv.Atoi(data["failures"])
	if s := data["state"]; s != "" {
		result.State = s
	}

	lastFailed, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
	if result.State == StateOpen && cb.cooledDown(lastFailed) {
		result.State = StateHalfOpen
	}
	if lastFailed > 0 {
		result.LastFailedAt = time.Unix(lastFailed, 0).UTC().Format(time.RFC3339)
	}

	return result
}
