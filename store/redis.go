package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/neuralcalc/core"
)

// RedisStore 是 Redis 实现的 Store。
// 多实例部署时共享预测缓存，支持持久化、集群、哨兵等。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 连接 Redis 并 Ping 一次，连不上直接返回错误。
func NewRedisStore(addr string, db int) (*RedisStore, error) {
	return NewRedisStoreWithOptions(&redis.Options{Addr: addr, DB: db}, "")
}

// NewRedisStoreWithOptions 使用完整的 redis.Options，prefix 会加在所有 key 前面
func NewRedisStoreWithOptions(opts *redis.Options, prefix string) (*RedisStore, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return r.client.Set(ctx, r.key(key), value, expiration(ttl)).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	for i, k := range keys {
		if s, ok := vals[i].(string); ok {
			result[k] = []byte(s)
		}
	}
	return result, nil
}

func (r *RedisStore) BatchSet(ctx context.Context, kvs map[string][]byte, ttl ...int) error {
	if len(kvs) == 0 {
		return nil
	}
	pipe := r.client.Pipeline()
	exp := expiration(ttl)
	for k, v := range kvs {
		pipe.Set(ctx, r.key(k), v, exp)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Ping 用于健康检查
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func expiration(ttl []int) time.Duration {
	if len(ttl) > 0 && ttl[0] > 0 {
		return time.Duration(ttl[0]) * time.Second
	}
	return 0
}

var _ core.Store = (*RedisStore)(nil)
