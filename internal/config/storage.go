package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/simp-lee/carhire/internal/domain"
	"github.com/simp-lee/carhire/internal/store"
)

// Storage is the key/value store selected by storage.driver together with
// its optional pruning hook and the close function releasing its
// connections.
type Storage struct {
	Store  domain.KVStore
	Pruner store.Pruner
	Driver string
	close  func() error
}

// Close releases the underlying connection, if any.
func (s *Storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// SetupStore opens the store configured in cfg. The database driver reuses
// SetupDatabase (and migrates the kv table); the redis driver pings the
// server before returning so misconfiguration fails at startup.
func SetupStore(cfg *Config, logger *slog.Logger) (*Storage, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	prefix := cfg.Storage.KeyPrefix

	switch cfg.Storage.Driver {
	case StorageMemory, "":
		mem := store.NewMemory()
		logger.Info("storage ready", slog.String("driver", StorageMemory))
		return &Storage{Store: mem, Pruner: mem, Driver: StorageMemory}, nil

	case StorageDatabase:
		db, err := SetupDatabase(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		g := store.NewGorm(db, prefix)
		logger.Info("storage ready", slog.String("driver", StorageDatabase), slog.String("key_prefix", prefix))
		return &Storage{
			Store:  g,
			Pruner: g,
			Driver: StorageDatabase,
			close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil

	case StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: DurationOr(cfg.Redis.DialTimeout, 5*time.Second),
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		ttl := DurationOr(cfg.Storage.TTL, 0)
		logger.Info("storage ready",
			slog.String("driver", StorageRedis),
			slog.String("addr", cfg.Redis.Addr),
			slog.Int("db", cfg.Redis.DB),
			slog.Duration("ttl", ttl),
		)
		return &Storage{
			Store:  store.NewRedis(rdb, prefix, ttl),
			Driver: StorageRedis,
			close:  rdb.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
}
