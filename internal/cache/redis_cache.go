package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"barbershop/backend/internal/domain"
)

type RedisBusyCache struct {
	client *redis.Client
}

func NewRedisBusyCache(addr string, password string, db int) *RedisBusyCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBusyCache{client: client}
}

func (c *RedisBusyCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBusyCache) Close() error {
	return c.client.Close()
}

func (c *RedisBusyCache) Get(ctx context.Context, key string) ([]domain.BusyInterval, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var intervals []domain.BusyInterval
	if err := json.Unmarshal([]byte(val), &intervals); err != nil {
		return nil, false, err
	}
	return intervals, true, nil
}

func (c *RedisBusyCache) Set(ctx context.Context, key string, value []domain.BusyInterval, ttl time.Duration) error {
	if value == nil {
		value = []domain.BusyInterval{}
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisBusyCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
