package oauthstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopconnect/internal/shop"
)

// Redis stores states in a shared Redis so any instance can serve the callback.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis returns a Redis-backed registry; keys are "<prefix>:<state>".
func NewRedis(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "shopconnect:oauth_state"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

func (r *Redis) key(state string) string { return r.prefix + ":" + state }

func (r *Redis) Issue(ctx context.Context, h shop.Hostname) (string, error) {
	for i := 0; i < 3; i++ {
		state, err := newState()
		if err != nil {
			return "", err
		}
		ok, err := r.client.SetNX(ctx, r.key(state), string(h), r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("oauth state: redis set: %w", err)
		}
		if ok {
			return state, nil
		}
	}
	return "", errors.New("oauth state: could not allocate a unique state")
}

// Consume uses GETDEL so two racing callbacks cannot both read the value.
func (r *Redis) Consume(ctx context.Context, state string) (shop.Hostname, error) {
	if state == "" {
		return "", ErrNotFound
	}
	v, err := r.client.GetDel(ctx, r.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("oauth state: redis getdel: %w", err)
	}
	return shop.Hostname(v), nil
}
