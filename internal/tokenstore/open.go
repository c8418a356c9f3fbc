// ABOUTME: Token store selection from configuration
// ABOUTME: memory, file or redis
package tokenstore

import (
	"context"
	"fmt"
	"log"

	"github.com/bitfocus/companion-module-discord-api/internal/config"
	"github.com/bitfocus/companion-module-discord-api/pkg/rpc"
)

// Open returns the store named by cfg.Kind. Stores that hold connections
// implement io.Closer.
func Open(ctx context.Context, cfg config.TokenStoreConfig) (rpc.TokenStore, error) {
	switch cfg.Kind {
	case config.StoreMemory:
		return &rpc.MemoryTokenStore{}, nil
	case config.StoreFile:
		log.Printf("tokenstore: using %s", cfg.Path)
		return NewFile(cfg.Path), nil
	case config.StoreRedis:
		log.Printf("tokenstore: using redis %s key %s", cfg.RedisAddr, cfg.RedisKey)
		r, err := NewRedis(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown token store %q", cfg.Kind)
}
