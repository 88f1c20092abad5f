package correlation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndSetScript claims KEYS[1] for ARGV[1] when the key is free or
// already ours. ARGV[2] is the TTL in milliseconds (0 keeps the key forever).
var compareAndSetScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current == false or current == ARGV[1] then
		local ttl = tonumber(ARGV[2])
		if ttl > 0 then
			redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
		else
			redis.call('SET', KEYS[1], ARGV[1])
		end
		return 1
	end
	return 0
`)

// RedisKV implements KV on a Redis client.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV wraps an existing client.
func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// DialRedis parses url, connects and pings.
func DialRedis(ctx context.Context, url string) (*RedisKV, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, opts SetOptions) (bool, error) {
	if opts.IfAbsent {
		ok, err := r.client.SetNX(ctx, key, value, opts.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("redis setnx %s: %w", key, err)
		}
		return ok, nil
	}

	if err := r.client.Set(ctx, key, value, opts.TTL).Err(); err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisKV) CompareAndSet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	res, err := compareAndSetScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis compare-and-set %s: %w", key, err)
	}
	return res == 1, nil
}

func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
