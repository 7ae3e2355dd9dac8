package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores secrets in Redis under "<prefix>:<service>:<key>".
//
// Values are stored without expiry; token lifetime is enforced by the backend
// that issued the token.
type Redis struct {
	redis   redis.UniversalClient
	prefix  string
	service string
}

// NewRedis builds a Redis-backed Store. An empty prefix defaults to "gks".
func NewRedis(client redis.UniversalClient, prefix, service string) *Redis {
	if prefix == "" {
		prefix = "gks"
	}
	return &Redis{
		redis:   client,
		prefix:  prefix,
		service: service,
	}
}

func (s *Redis) key(k string) string {
	return s.prefix + ":" + s.service + ":" + k
}

func (s *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	v, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, true, nil
}

func (s *Redis) Set(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Redis) Remove(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
