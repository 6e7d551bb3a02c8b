package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/utrading/utrading-liq-monitor/config"
)

// RedisBlob 基于 redis 字符串的存储
type RedisBlob struct {
	rdb    *redis.Client
	prefix string
}

func OpenRedis(cfg config.Storage) (*RedisBlob, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &RedisBlob{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

func (r *RedisBlob) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (r *RedisBlob) Put(ctx context.Context, key string, data []byte) error {
	return r.rdb.Set(ctx, r.prefix+key, data, 0).Err()
}

func (r *RedisBlob) Close() error {
	return r.rdb.Close()
}
