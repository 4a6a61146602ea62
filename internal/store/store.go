// Package store caches successful responses in SQLite, Postgres or Redis.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spec-search/internal/config"
)

// Store is a TTL key/value store for serialized responses.
type Store interface {
	// Get returns nil, nil on a miss or an expired entry.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeleteExpired removes expired entries and reports how many went.
	DeleteExpired(ctx context.Context) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by cfg.Driver, or nil for "none".
func Open(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		s, err = NewSQLite(cfg.SQLitePath)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	case "redis":
		s, err = NewRedis(ctx, cfg.RedisURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Key hashes namespace and the JSON form of v into a hex SHA-256 digest.
func Key(namespace string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal key")
	}
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
