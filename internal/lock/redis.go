package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis grants leases stored as SET NX PX keys
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Factory = (*Redis)(nil)

// NewRedis creates a Redis lock factory. Every key is stored under prefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Acquire implements Factory
func (r *Redis) Acquire(ctx context.Context, key string, wait, hold time.Duration) (Handle, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	err := poll(ctx, wait, func(ctx context.Context) (bool, error) {
		ok, err := r.client.SetNX(ctx, redisKey, token, hold).Result()
		if err != nil {
			return false, fmt.Errorf("redis: %w", errors.Join(ErrLockUnavailable, err))
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &redisHandle{client: r.client, key: redisKey, token: token}, nil
}

// Ping checks the backend is reachable
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type redisHandle struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (h *redisHandle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", h.key, err)
	}
	return nil
}
