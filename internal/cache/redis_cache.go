package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "modalku:idem:"

type RedisIdempotencyCache struct {
	client *redis.Client
}

func NewRedisIdempotencyCache(addr string, password string, db int) *RedisIdempotencyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisIdempotencyCache{client: client}
}

func (c *RedisIdempotencyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisIdempotencyCache) Close() error {
	return c.client.Close()
}

func (c *RedisIdempotencyCache) Claim(ctx context.Context, key string, fingerprint string, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(StoredResponse{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, keyPrefix+key, payload, ttl).Result()
}

func (c *RedisIdempotencyCache) Lookup(ctx context.Context, key string) (*StoredResponse, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisIdempotencyCache) Save(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	resp.Done = true
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+key, payload, ttl).Err()
}

func (c *RedisIdempotencyCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, keyPrefix+key).Err()
}
