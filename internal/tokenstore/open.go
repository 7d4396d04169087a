package tokenstore

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/edusync/edusync/internal/config"
)

// Open builds the Store selected by cfg.Driver. The returned close function
// releases any connection held by the store.
func Open(cfg config.TokenStoreConfig) (Store, func() error, error) {
	c, err := NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("token store cipher: %w", err)
	}

	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Path, c), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisStore(client, cfg.Redis.Key, c), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store driver %q", cfg.Driver)
	}
}
