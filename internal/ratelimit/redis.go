package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

var decrementScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

// RedisStore shares windows across instances. The Lua script makes the
// increment and first-hit expiry one atomic step.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (r *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	result, err := incrementScript.Run(ctx, r.client, []string{key}, windowMillis).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return 0, time.Time{}, errors.New("unexpected redis rate limit response")
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, time.Time{}, errors.New("invalid redis counter response")
	}

	resetAt := r.now()
	if ttlMillis, _ := values[1].(int64); ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	return int(current), resetAt, nil
}

func (r *RedisStore) Decrement(ctx context.Context, key string) error {
	return decrementScript.Run(ctx, r.client, []string{key}).Err()
}
