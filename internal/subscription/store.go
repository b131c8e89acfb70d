package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lone-cloud/washbell/internal/config"
)

var ErrNotFound = errors.New("subscription not found")

// Store persists subscriptions keyed by endpoint. Implementations must be safe
// for concurrent use; each method is atomic for the row it touches.
type Store interface {
	// Upsert inserts sub unless a row with the same endpoint exists, in which
	// case it does nothing.
	Upsert(ctx context.Context, sub Subscription) error
	// Get returns the stored row for endpoint, or ErrNotFound.
	Get(ctx context.Context, endpoint string) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	// Remove deletes the row for endpoint. Unknown endpoints are not an error.
	Remove(ctx context.Context, endpoint string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("Using in-memory subscription store, subscriptions are lost on restart")
		return NewMemoryStore(), nil
	case config.StoreDriverSQLite:
		logger.Debug("Opening sqlite subscription store", "path", cfg.StoragePath)
		store, err := NewSQLiteStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreDriverRedis:
		client, err := ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Debug("Connected to redis subscription store", "key", cfg.RedisKey)
		return NewRedisStore(client, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
