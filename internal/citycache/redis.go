package citycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// maxUpdateAttempts bounds WATCH retries when other writers keep changing the key.
const maxUpdateAttempts = 16

// RedisStore keeps keys in redis under a per-profile prefix so several
// terminals can share one city history. Update makes concurrent saves from
// different processes safe.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to addr and verifies the connection with PING.
func NewRedisStore(ctx context.Context, addr, password string, db int, profile string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect city store %s: %w", addr, err)
	}
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, prefix: "citycache:" + profile + ":"}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

// Update runs fn against the current value inside WATCH/MULTI and retries when
// another client changed the key before EXEC.
func (s *RedisStore) Update(ctx context.Context, key string, fn func(raw string, ok bool) (string, bool, error)) error {
	k := s.prefix + key
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Result()
		ok := true
		switch {
		case errors.Is(err, redis.Nil):
			raw, ok = "", false
		case err != nil:
			return err
		}
		next, write, err := fn(raw, ok)
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %s: %w", key, redis.TxFailedErr)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
