package store

import (
	"context"
	"errors"
	"time"

	lowimpl "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces keys in a shared Redis database.
const DefaultPrefix = "site2pdf:"

// Redis is a Store backed by a Redis server.
type Redis struct {
	internal *lowimpl.Client
	prefix   string
}

// Compile-time interface check.
var _ Store = (*Redis)(nil)

// NewRedis creates a client. It does not dial until the first command.
func NewRedis(addr, password string, db int, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{
		internal: lowimpl.NewClient(&lowimpl.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: prefix,
	}
}

func (c *Redis) key(k string) string { return c.prefix + k }

func ttlArg(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// Get implements Store.
func (c *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.internal.Get(ctx, c.key(key)).Result()
	if errors.Is(err, lowimpl.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Store.
func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.internal.Set(ctx, c.key(key), value, ttlArg(ttl)).Err()
}

// SetNX implements Store.
func (c *Redis) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.internal.SetNX(ctx, c.key(key), value, ttlArg(ttl)).Result()
}

// Delete implements Store.
func (c *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.internal.Del(ctx, full...).Err()
}

// PushCapped implements Store.
func (c *Redis) PushCapped(ctx context.Context, key, value string, limit int, ttl time.Duration) error {
	k := c.key(key)
	_, err := c.internal.TxPipelined(ctx, func(p lowimpl.Pipeliner) error {
		p.RPush(ctx, k, value)
		if limit > 0 {
			p.LTrim(ctx, k, int64(-limit), -1)
		}
		if ttl > 0 {
			p.Expire(ctx, k, ttl)
		}
		return nil
	})
	return err
}

// Range implements Store.
func (c *Redis) Range(ctx context.Context, key string) ([]string, error) {
	v, err := c.internal.LRange(ctx, c.key(key), 0, -1).Result()
	if errors.Is(err, lowimpl.Nil) {
		return nil, nil
	}
	return v, err
}

// Ping implements Store.
func (c *Redis) Ping(ctx context.Context) error {
	return c.internal.Ping(ctx).Err()
}

// Close implements Store.
func (c *Redis) Close() error {
	return c.internal.Close()
}
