// Package cache provides the key/value backends behind the client-side
// product cache.
package cache

import (
	"fmt"

	"github.com/lendmatch/backend/config"
	"github.com/lendmatch/backend/internal/domain"
)

// Store is a KV store that holds resources until closed
type Store interface {
	domain.KVStore
	Close() error
}

// New builds the backend selected by cfg.Type
func New(cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(), nil
	case "sqlite":
		return NewSQLiteCache(cfg.Path)
	case "redis":
		return NewRedisCache(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
