package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"slaydrip/backend/internal/domain"
)

type RedisCartStore struct {
	client *redis.Client
}

func NewRedisCartStore(client *redis.Client) *RedisCartStore {
	return &RedisCartStore{client: client}
}

func (c *RedisCartStore) Load(ctx context.Context, staffID string) ([]domain.CartLine, error) {
	return decodeCart(c.client.Get(ctx, cartKey(staffID)).Bytes())
}

// Take uses GETDEL, so two concurrent checkouts never both see the cart.
func (c *RedisCartStore) Take(ctx context.Context, staffID string) ([]domain.CartLine, error) {
	return decodeCart(c.client.GetDel(ctx, cartKey(staffID)).Bytes())
}

func (c *RedisCartStore) Restore(ctx context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error {
	if len(lines) == 0 {
		return nil
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, cartKey(staffID), payload, ttl).Err()
}

func decodeCart(val []byte, err error) ([]domain.CartLine, error) {
	if errors.Is(err, redis.Nil) {
		return []domain.CartLine{}, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(val, &lines); err != nil {
		return nil, err
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return lines, nil
}

func (c *RedisCartStore) Save(ctx context.Context, staffID string, lines []domain.CartLine, ttl time.Duration) error {
	if len(lines) == 0 {
		return c.Clear(ctx, staffID)
	}
	payload, err := json.Marshal(lines)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cartKey(staffID), payload, ttl).Err()
}

func (c *RedisCartStore) Clear(ctx context.Context, staffID string) error {
	return c.client.Del(ctx, cartKey(staffID)).Err()
}
