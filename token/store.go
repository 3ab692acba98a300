package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-jobboard-client/internal/config"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidPair is returned when saving a pair that is missing a token
var ErrInvalidPair = errors.New("credential pair must contain both tokens")

// Store holds the current credential pair durably across restarts.
// Load never fails: unreadable or partial data is reported as absent.
type Store interface {
	Save(ctx context.Context, pair Pair) error
	Load(ctx context.Context) (Pair, bool)
	Clear(ctx context.Context) error
}

// NewStore builds the Store selected by configuration
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.GetTokenStore() {
	case config.TokenStoreFile:
		var opts []FileStoreOption
		if cfg.GetSealKey() != "" {
			sealer, err := NewSealer(cfg.GetSealKey())
			if err != nil {
				return nil, fmt.Errorf("[token NewStore] %w", err)
			}
			opts = append(opts, WithSealer(sealer))
		}
		return NewFileStore(cfg.GetTokenFile(), cfg.GetStorageKey(), opts...)
	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		return NewRedisStore(client, cfg.GetStorageKey())
	default:
		return nil, fmt.Errorf("[token NewStore] unknown token store %q", cfg.GetTokenStore())
	}
}
