package rediskv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	c *redis.Client
}

func New(addr string) *RedisStore {
	return &RedisStore{
		c: redis.NewClient(&redis.Options{
			Addr: addr,
		}),
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.c.Set(ctx, key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.c.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) error {
	iter := s.c.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.c.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.Wrap(err, "redis del")
		}
	}
	return errors.Wrap(iter.Err(), "redis scan")
}

func (s *RedisStore) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	iter := s.c.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.c.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Ключ исчез между SCAN и GET — пропускаем.
			continue
		}
		if err != nil {
			return errors.Wrap(err, "redis get")
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Err(), "redis scan")
}

func (s *RedisStore) Close() error {
	return s.c.Close()
}
