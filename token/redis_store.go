package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore keeps the credential record under a single redis key
type RedisStore struct {
	client redis.Cmdable
	key    string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.Cmdable, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("[NewRedisStore] redis client is required")
	}
	if key == "" {
		return nil, errors.New("[NewRedisStore] storage key is required")
	}
	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Save(ctx context.Context, pair Pair) error {
	if !pair.Valid() {
		return ErrInvalidPair
	}
	data, err := json.Marshal(toRecord(pair))
	if err != nil {
		return fmt.Errorf("[RedisStore Save] %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("[RedisStore Save] %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) (Pair, bool) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", s.key).Msg("Failed to load credentials from redis")
		}
		return Pair{}, false
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("Stored credentials unreadable, treating as absent")
		return Pair{}, false
	}
	pair := r.pair()
	if !pair.Valid() {
		return Pair{}, false
	}
	return pair, true
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("[RedisStore Clear] %w", err)
	}
	return nil
}
