// Package storage is a namespaced key-value store with optional per-entry
// expiry. Values are encoded as JSON.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/svenskhalsovard/storefront/config"
)

// ErrNotFound is returned by Get when a key is absent or has expired.
var ErrNotFound = errors.New("storage: key not found")

// Store is a single namespace. A zero ttl keeps the entry until it is removed.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, dst any) error
	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Backend hands out namespaces that share one underlying database.
type Backend interface {
	Namespace(name string) Store
	Close() error
}

// Open builds the backend selected by cfg.Driver.
func Open(cfg config.Storage) (Backend, error) {
	switch cfg.Driver {
	case "bolt":
		return OpenBolt(cfg.Path)
	case "redis":
		return OpenRedis(cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
