package tracker

import (
	"context"
	"fmt"

	"github.com/c0deZ3R0/go-track-kit/config"
	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/logging"
	"github.com/c0deZ3R0/go-track-kit/storage"
	"github.com/c0deZ3R0/go-track-kit/storage/postgres"
	"github.com/c0deZ3R0/go-track-kit/storage/redis"
	"github.com/c0deZ3R0/go-track-kit/storage/sqlite"
)

// openStore builds the KVStore selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *logging.Logger) (storage.KVStore, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return storage.NewMemoryStore(), nil
	case config.DriverSQLite:
		s, err := sqlite.New(&sqlite.Config{
			DataSourceName: cfg.DSN,
			EnableWAL:      true,
			TableName:      cfg.Table,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.New(&postgres.Config{
			ConnectionString: cfg.DSN,
			TableName:        cfg.Table,
			Logger:           logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverRedis:
		s, err := redis.New(ctx, redis.Config{
			URL:    cfg.DSN,
			Addr:   cfg.RedisAddr,
			DB:     cfg.RedisDB,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.NewConfigError(fmt.Errorf("unknown storage driver %q", cfg.Driver))
	}
}
