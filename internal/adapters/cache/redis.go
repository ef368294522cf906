// Package cache holds the Redis-backed settlement cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "settlement:v2"

// fenceTTL outlives any recompute that could have started before a commit.
const fenceTTL = time.Hour

// putScript writes a record unless that would move the cached week
// backwards: a pending draft never replaces a paid record, a newer draft or
// a commit fence. Paid records always win.
var putScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'version', 'status', 'fence')
if ARGV[3] ~= 'paid' then
	if cur[2] == 'paid' or cur[3] then
		return 0
	end
	if cur[1] and tonumber(cur[1]) > tonumber(ARGV[2]) then
		return 0
	end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', ARGV[2], 'status', ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
end
return 1
`)

// New creates a Redis client and verifies it with a ping.
func New(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return client, nil
}

// SettlementCache implements ports.SettlementCache. Each driver week is a
// hash holding the record JSON plus its version and payment status, so
// writes can be ordered without decoding the payload.
type SettlementCache struct {
	client redis.UniversalClient
}

// NewSettlementCache wraps client
func NewSettlementCache(client redis.UniversalClient) *SettlementCache {
	return &SettlementCache{client: client}
}

func key(driverID, weekID string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, driverID, weekID)
}

// Get returns nil, nil on a miss. A fenced week is a miss.
func (c *SettlementCache) Get(ctx context.Context, driverID, weekID string) (*models.SettlementRecord, error) {
	raw, err := c.client.HGet(ctx, key(driverID, weekID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var rec models.SettlementRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A payload from an older layout is just a miss.
		_ = c.client.Del(ctx, key(driverID, weekID)).Err()
		return nil, nil
	}
	return &rec, nil
}

// Put stores the record unless a paid record, a newer draft or a commit
// fence is already cached. A zero ttl keeps it until invalidated, which is
// only safe for paid records.
func (c *SettlementCache) Put(ctx context.Context, rec *models.SettlementRecord, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	err = putScript.Run(ctx, c.client,
		[]string{key(rec.DriverID, rec.WeekID)},
		raw, rec.Version, string(rec.PaymentStatus), ttl.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached record and leaves a fence behind, so a draft
// computed before the week was paid cannot be cached over it. Only a paid
// record replaces the fence.
func (c *SettlementCache) Invalidate(ctx context.Context, driverID, weekID string) error {
	k := key(driverID, weekID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, "fence", 1)
		pipe.Expire(ctx, k, fenceTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
