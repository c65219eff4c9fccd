package persist

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSnapshotter 把整份快照存成一个 key 的 JSON 值。
type RedisSnapshotter struct {
	rdb *redis.Client
	key string
}

func NewRedisSnapshotter(rdb *redis.Client, key string) *RedisSnapshotter {
	return &RedisSnapshotter{rdb: rdb, key: key}
}

func (r *RedisSnapshotter) Save(ctx context.Context, snap Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return r.rdb.Set(rctx, r.key, data, 0).Err()
}

func (r *RedisSnapshotter) Load(ctx context.Context) (Snapshot, error) {
	rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	data, err := r.rdb.Get(rctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, err
	}
	return Decode(data)
}
