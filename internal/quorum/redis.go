// SPDX-License-Identifier: Apache-2.0

package quorum

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hashgraph/solo-stager/internal/core"
)

// casScript conditionally swaps a key's value server side. KEYS[1] is the
// key, ARGV[1] the expected value ("" means the key must not exist), ARGV[2]
// the next value and ARGV[3] the TTL in milliseconds.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if ARGV[1] == '' then
  if current ~= false then
    return 0
  end
elseif current ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisBackend stores barrier state in redis, letting agents on different
// hosts rendezvous on the same round.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend wraps an existing redis client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// ConnectRedis dials a redis server and verifies it responds before any
// barrier round depends on it.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.QuorumBackendError.Wrap(err, "cannot reach redis at %s", addr)
	}
	return NewRedisBackend(client), nil
}

func (b *RedisBackend) IncrementAndGet(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := b.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.PExpire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, core.QuorumBackendError.Wrap(err, "failed to increment %s", key)
	}
	return incr.Val(), nil
}

func (b *RedisBackend) CompareAndSet(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	res, err := casScript.Run(ctx, b.client, []string{key}, expected, next, ttl.Milliseconds()).Int()
	if err != nil {
		return false, core.QuorumBackendError.Wrap(err, "failed to swap %s", key)
	}
	return res == 1, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.QuorumBackendError.Wrap(err, "failed to read %s", key)
	}
	return val, true, nil
}
