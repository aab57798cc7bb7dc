package ratelimiter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript evaluates both windows and records the request atomically.
// Timestamps live in sorted sets scored by milliseconds; pruning and the
// ceiling check happen server-side so concurrent clients cannot both pass
// under the last remaining slot.
var takeScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local perMin = tonumber(ARGV[2])
local perHour = tonumber(ARGV[3])
local minWin = tonumber(ARGV[4])
local hourWin = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - minWin)
redis.call('ZREMRANGEBYSCORE', KEYS[2], 0, now - hourWin)

if perMin > 0 and redis.call('ZCARD', KEYS[1]) >= perMin then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + minWin - now, 0, 0}
end
if perHour > 0 and redis.call('ZCARD', KEYS[2]) >= perHour then
  local oldest = redis.call('ZRANGE', KEYS[2], 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + hourWin - now, 0, 0}
end

redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('ZADD', KEYS[2], now, ARGV[6])
redis.call('PEXPIRE', KEYS[1], minWin)
redis.call('PEXPIRE', KEYS[2], hourWin)
return {1, 0, redis.call('ZCARD', KEYS[1]), redis.call('ZCARD', KEYS[2])}
`)

// RedisStore implements Store on Redis sorted sets, sharing windows across
// process instances.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed sliding-window store.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "ratelimit"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Take implements Store.
func (rs *RedisStore) Take(ctx context.Context, key string, limit Limit) (Result, error) {
	if limit.IsZero() {
		return Result{Allowed: true}, nil
	}

	member, err := randomMember()
	if err != nil {
		return Result{}, err
	}

	minuteKey := fmt.Sprintf("%s:%s:m", rs.keyPrefix, key)
	hourKey := fmt.Sprintf("%s:%s:h", rs.keyPrefix, key)

	raw, err := takeScript.Run(ctx, rs.client,
		[]string{minuteKey, hourKey},
		time.Now().UnixMilli(),
		limit.PerMinute,
		limit.PerHour,
		MinuteWindow.Milliseconds(),
		HourWindow.Milliseconds(),
		member,
	).Slice()
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(raw) != 4 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	allowed, _ := raw[0].(int64)
	resetMillis, _ := raw[1].(int64)
	minuteUsed, _ := raw[2].(int64)
	hourUsed, _ := raw[3].(int64)

	if allowed == 0 {
		return Result{
			Allowed:    false,
			ResetAfter: time.Duration(resetMillis) * time.Millisecond,
		}, nil
	}

	return Result{
		Allowed:   true,
		Remaining: remaining(limit, int(minuteUsed), int(hourUsed)),
	}, nil
}

// Reset implements Store.
func (rs *RedisStore) Reset(ctx context.Context, key string) error {
	minuteKey := fmt.Sprintf("%s:%s:m", rs.keyPrefix, key)
	hourKey := fmt.Sprintf("%s:%s:h", rs.keyPrefix, key)
	if err := rs.client.Del(ctx, minuteKey, hourKey).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

// randomMember makes each recorded request a distinct sorted-set member even
// when two requests share a millisecond.
func randomMember() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
