package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a stored turn stays replayable.
const DefaultTTL = 24 * time.Hour

type (
	// RedisStore persists turns in Redis so continuity survives process
	// restarts and is shared across replicas.
	RedisStore struct {
		rdb *redis.Client
		ttl time.Duration
	}

	// RedisOptions configures the Redis-backed store.
	RedisOptions struct {
		// Redis is the client to use. Required.
		Redis *redis.Client
		// TTL overrides DefaultTTL when positive.
		TTL time.Duration
	}
)

// NewRedisStore builds a Redis-backed store.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: opts.Redis, ttl: ttl}, nil
}

func redisKeyForTurn(id int64) string {
	return fmt.Sprintf("genui:session:%d", id)
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, id int64, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKeyForTurn(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save turn %d: %w", id, err)
	}
	return nil
}

// Window implements Store.
func (s *RedisStore) Window(ctx context.Context, id int64, n int) ([]Turn, error) {
	turns := make([]Turn, 0, n)
	for i := id - int64(n) + 1; i <= id; i++ {
		if i < 1 {
			continue
		}
		data, err := s.rdb.Get(ctx, redisKeyForTurn(i)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load turn %d: %w", i, err)
		}
		var turn Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			return nil, fmt.Errorf("decode turn %d: %w", i, err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Name implements clue health.Pinger.
func (s *RedisStore) Name() string { return "redis" }

// Ping implements clue health.Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
