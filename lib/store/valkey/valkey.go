package valkey

import (
	"context"
	"fmt"
	"time"

	valkey "github.com/redis/go-redis/v9"
	"github.com/uvensys/slidegate/lib/store"
)

type Store struct {
	rdb *valkey.Client
}

func (s *Store) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: can't delete from valkey: %w", store.ErrUnavailable, err)
	}

	switch n {
	case 0:
		return fmt.Errorf("%w: %d key(s) deleted", store.ErrNotFound, n)
	default:
		return nil
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if valkey.HasErrorPrefix(err, "redis: nil") {
			return nil, fmt.Errorf("%w: %w", store.ErrNotFound, err)
		}

		return nil, fmt.Errorf("%w: can't fetch from valkey: %w", store.ErrUnavailable, err)
	}

	return []byte(result), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	if _, err := s.rdb.Set(ctx, key, string(value), expiry).Result(); err != nil {
		return fmt.Errorf("%w: can't set %q in valkey: %w", store.ErrUnavailable, key, err)
	}

	return nil
}

// Increment maps to INCR. The expiry is only stamped when the counter is
// created, which gives fixed-window semantics.
func (s *Store) Increment(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: can't increment %q in valkey: %w", store.ErrUnavailable, key, err)
	}

	if count == 1 {
		if err := s.rdb.Expire(ctx, key, expiry).Err(); err != nil {
			return 0, fmt.Errorf("%w: can't expire %q in valkey: %w", store.ErrUnavailable, key, err)
		}
	}

	return count, nil
}
