// Package ratelimit implements the global LLM token-budget limiter,
// backed by Redis so the bucket is shared across every process in the
// fleet.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	sageerrors "github.com/contosowiki/sage/internal/errors"
)

// bucketScript atomically refills a per-tenant bucket up to capacity based
// on elapsed time, then attempts to withdraw `requested` tokens. Returns 1
// (allowed) or 0 (insufficient tokens right now); the caller re-polls
// until the configured wait elapses.
//
// KEYS[1] = bucket key
// ARGV[1] = capacity (tokens per minute)
// ARGV[2] = requested tokens
// ARGV[3] = now (unix seconds, passed in since Lua's wall clock would
//           break reproducibility across a Redis cluster's replicas)
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local requested = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "updated_at")
local tokens = tonumber(state[1])
local updatedAt = tonumber(state[2])
if tokens == nil then
  tokens = capacity
  updatedAt = now
end

local elapsed = math.max(0, now - updatedAt)
local refill = elapsed * (capacity / 60.0)
tokens = math.min(capacity, tokens + refill)

if tokens < requested then
  redis.call("HMSET", key, "tokens", tokens, "updated_at", now)
  redis.call("EXPIRE", key, 120)
  return 0
end

tokens = tokens - requested
redis.call("HMSET", key, "tokens", tokens, "updated_at", now)
redis.call("EXPIRE", key, 120)
return 1
`)

// Limiter enforces the per-tenant token bucket.
type Limiter struct {
	rdb        *redis.Client
	poll       time.Duration
	defaultCap int
	perTenant  map[string]int
}

// New builds a Limiter with the process-wide default bucket capacity.
// perTenantOverrides may assign a distinct tokens-per-minute capacity to
// specific tenant ids; tenants absent from the map use defaultCapacity.
func New(rdb *redis.Client, defaultCapacity int, perTenantOverrides map[string]int) *Limiter {
	if perTenantOverrides == nil {
		perTenantOverrides = map[string]int{}
	}
	return &Limiter{rdb: rdb, poll: 100 * time.Millisecond, defaultCap: defaultCapacity, perTenant: perTenantOverrides}
}

func (l *Limiter) capacityFor(tenant string) int {
	if c, ok := l.perTenant[tenant]; ok {
		return c
	}
	return l.defaultCap
}

// Acquire withdraws `tokens` from tenant's bucket, waiting up to `wait` for
// capacity to free up via refill before failing with RateLimited. A nil Redis client (no
// limiter configured) always allows the request.
func (l *Limiter) Acquire(ctx context.Context, tenant string, tokens int, wait time.Duration) error {
	if l.rdb == nil {
		return nil
	}
	capacity := l.capacityFor(tenant)
	if tokens > capacity {
		return sageerrors.New(sageerrors.RateLimited, fmt.Sprintf(
			"requested %d tokens exceeds bucket capacity %d for tenant %s", tokens, capacity, tenant))
	}

	deadline := time.Now().Add(wait)
	key := "sage:ratelimit:" + tenant
	for {
		allowed, err := l.tryAcquire(ctx, key, capacity, tokens)
		if err != nil {
			return sageerrors.Wrap(sageerrors.InternalError, "ratelimit: redis error", err)
		}
		if allowed {
			return nil
		}
		if time.Now().After(deadline) {
			return sageerrors.New(sageerrors.RateLimited, fmt.Sprintf("tenant %s exceeded token budget", tenant))
		}
		select {
		case <-ctx.Done():
			return sageerrors.Wrap(sageerrors.RateLimited, "ratelimit: context cancelled while waiting", ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

func (l *Limiter) tryAcquire(ctx context.Context, key string, capacity, tokens int) (bool, error) {
	res, err := bucketScript.Run(ctx, l.rdb, []string{key}, capacity, tokens, time.Now().Unix()).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	return ok && n == 1, nil
}
