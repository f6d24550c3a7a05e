package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"condobill/internal/clients"
)

const statementTTL = 30 * time.Second

// RedisStatementCache keeps rendered statements per party for a short TTL.
// The reconciler deletes the key after every committed write, so a cached
// statement can be stale at most by the TTL, never past a known write.
type RedisStatementCache struct {
	redis *clients.RedisClient
	ttl   time.Duration
}

func NewRedisStatementCache(client *clients.RedisClient) *RedisStatementCache {
	return &RedisStatementCache{redis: client, ttl: statementTTL}
}

func statementKey(partyID int64) string {
	return fmt.Sprintf("statement:%d", partyID)
}

func (c *RedisStatementCache) Get(ctx context.Context, partyID int64) (*Statement, bool, error) {
	if c == nil || c.redis == nil {
		return nil, false, nil
	}
	raw, err := c.redis.Get(ctx, statementKey(partyID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var st Statement
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, err
	}
	return &st, true, nil
}

func (c *RedisStatementCache) Set(ctx context.Context, partyID int64, st *Statement) error {
	if c == nil || c.redis == nil {
		return nil
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, statementKey(partyID), string(data), c.ttl)
}

func (c *RedisStatementCache) Invalidate(ctx context.Context, partyID int64) error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, statementKey(partyID))
}
