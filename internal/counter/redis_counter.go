package counter

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultKeyTTL outlives a business day so late sales still see their key.
const DefaultKeyTTL = 48 * time.Hour

type RedisCounter struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCounter(addr string, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisCounterFromClient(client)
}

func NewRedisCounterFromClient(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "kedaipos:seq:", ttl: DefaultKeyTTL}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

// Next increments key. The key is created with its expiry in the same
// MULTI as the increment, so a key never outlives its TTL.
func (c *RedisCounter) Next(ctx context.Context, key string) (int64, error) {
	fullKey := c.prefix + key
	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, fullKey, 0, c.ttl)
		incr = pipe.Incr(ctx, fullKey)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
