package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// checkAndRecordScript trims records older than the window, counts the
// rest and appends a new member only when under the limit. It runs
// atomically on the Redis server.
//
// KEYS[1] bucket key
// ARGV[1] now (ms), ARGV[2] since (ms), ARGV[3] limit, ARGV[4] member, ARGV[5] ttl (ms)
// Returns {allowed, count, oldest_ms}.
var checkAndRecordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. ARGV[2])
local count = redis.call('ZCARD', key)

local oldest = 0
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end

if count >= limit then
  return {0, count, oldest}
end

redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, tonumber(ARGV[5]))
if oldest == 0 then
  oldest = now
end
return {1, count + 1, oldest}
`)

// RedisStore keeps one sorted set per bucket, scored by request time.
type RedisStore struct {
	client redis.Scripter
	prefix string
}

func NewRedisStore(client redis.Scripter) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit:"}
}

func (s *RedisStore) CheckAndRecord(ctx context.Context, key Key, limit int, since, now time.Time) (Usage, error) {
	ttl := now.Sub(since)
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	res, err := checkAndRecordScript.Run(ctx, s.client,
		[]string{s.prefix + key.String()},
		now.UnixMilli(), since.UnixMilli(), limit, uuid.NewString(), ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Usage{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Usage{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	usage := Usage{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
	}
	if res[2] > 0 {
		usage.Oldest = time.UnixMilli(res[2])
	}
	return usage, nil
}
