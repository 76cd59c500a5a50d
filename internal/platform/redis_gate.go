package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adinsight/internal/pkg/logger"
)

// Lua script for atomic slot acquisition. The key's TTL is refreshed on
// every acquire so slots leaked by a crashed process expire once traffic
// stops.
const acquireSlotLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= limit then
    return 0
end

redis.call("INCR", key)
redis.call("PEXPIRE", key, ttl)
return 1
`

const releaseSlotLuaScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
    return redis.call("DECR", KEYS[1])
end
return 0
`

// RedisGate is a Gate shared by every process pointing at the same Redis
// key, so several orchestrator instances stay within one request budget.
type RedisGate struct {
	client       *redis.Client
	key          string
	limit        int
	ttl          time.Duration
	pollInterval time.Duration

	acquireScript *redis.Script
	releaseScript *redis.Script
}

// NewRedisGate creates a shared gate allowing limit concurrent holders.
func NewRedisGate(client *redis.Client, key string, limit int) *RedisGate {
	return &RedisGate{
		client:        client,
		key:           fmt.Sprintf("adinsight:gate:%s", key),
		limit:         limit,
		ttl:           5 * time.Minute,
		pollInterval:  50 * time.Millisecond,
		acquireScript: redis.NewScript(acquireSlotLuaScript),
		releaseScript: redis.NewScript(releaseSlotLuaScript),
	}
}

// TryAcquire takes a slot if one is free.
func (g *RedisGate) TryAcquire(ctx context.Context) (bool, error) {
	n, err := g.acquireScript.Run(ctx, g.client, []string{g.key}, g.limit, g.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis gate acquire: %w", err)
	}
	return n == 1, nil
}

// Acquire polls until a slot is free or ctx is done.
func (g *RedisGate) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		ok, err := g.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release frees a slot.
func (g *RedisGate) Release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.releaseScript.Run(ctx, g.client, []string{g.key}).Err(); err != nil {
		logger.Warn("redis gate release failed", "key", g.key, "error", err)
	}
}

// InFlight returns the current holder count.
func (g *RedisGate) InFlight(ctx context.Context) (int, error) {
	n, err := g.client.Get(ctx, g.key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
