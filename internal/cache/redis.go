package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the production Backend. Lists map onto native Redis lists;
// prepend-and-trim runs as a single Lua script so concurrent pushes to one
// owner key serialize inside Redis without an application-level lock.
//
// Empty lists cannot exist natively in Redis, so presence of an empty list is
// recorded under a sibling marker key ("<key>:empty").
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis backend for the given address.
func NewRedis(addr string) *Redis {
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }

// Ping verifies connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func emptyMarker(key string) string { return key + ":empty" }

// GetList implements Lists.
func (r *Redis) GetList(ctx context.Context, key string) ([][]byte, bool, error) {
	pipe := r.client.Pipeline()
	lrange := pipe.LRange(ctx, key, 0, -1)
	marker := pipe.Exists(ctx, emptyMarker(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, unavailable(err)
	}
	vals := lrange.Val()
	if len(vals) > 0 {
		items := make([][]byte, len(vals))
		for i, v := range vals {
			items[i] = []byte(v)
		}
		return items, true, nil
	}
	if marker.Val() > 0 {
		return nil, true, nil
	}
	return nil, false, nil
}

// SetList implements Lists.
func (r *Redis) SetList(ctx context.Context, key string, items [][]byte, ttl time.Duration) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key, emptyMarker(key))
	if len(items) == 0 {
		pipe.Set(ctx, emptyMarker(key), "1", ttl)
	} else {
		args := make([]interface{}, len(items))
		for i, it := range items {
			args[i] = it
		}
		pipe.RPush(ctx, key, args...)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}

// pushTrimScript prepends and trims only when the list is already
// established; the caller reloads from durable storage otherwise.
var pushTrimScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 or redis.call('EXISTS', KEYS[2]) == 1 then
  redis.call('LPUSH', KEYS[1], ARGV[1])
  redis.call('LTRIM', KEYS[1], 0, tonumber(ARGV[2]) - 1)
  redis.call('DEL', KEYS[2])
  if tonumber(ARGV[3]) > 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[3])
  end
  return 1
end
return 0
`)

// PushTrim implements Lists.
func (r *Redis) PushTrim(ctx context.Context, key string, item []byte, capacity int, ttl time.Duration) (bool, error) {
	res, err := pushTrimScript.Run(ctx, r.client,
		[]string{key, emptyMarker(key)},
		item, capacity, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return res == 1, nil
}

// DelList implements Lists.
func (r *Redis) DelList(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key, emptyMarker(key)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// GetObject implements Objects.
func (r *Redis) GetObject(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	return val, true, nil
}

// SetObject implements Objects.
func (r *Redis) SetObject(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, val, ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// DelObject implements Objects.
func (r *Redis) DelObject(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}
