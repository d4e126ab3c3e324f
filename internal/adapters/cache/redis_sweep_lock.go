package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSweepLock is a best-effort distributed lock built on SET NX with a TTL.
// Release only deletes the key when this holder still owns it.
type RedisSweepLock struct {
	client *redis.Client
	token  string
}

func NewRedisSweepLock(client *redis.Client, holderToken string) *RedisSweepLock {
	return &RedisSweepLock{client: client, token: holderToken}
}

func (l *RedisSweepLock) Acquire(ctx context.Context, key string, ttlSeconds int) (bool, error) {
	return l.client.SetNX(ctx, key, l.token, time.Duration(ttlSeconds)*time.Second).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisSweepLock) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{key}, l.token).Err()
}
