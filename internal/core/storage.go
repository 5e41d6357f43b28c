package core

import (
	"context"
	"fmt"
	"strings"

	"gearcore/internal/config"
	"gearcore/internal/infra/persistence/memory"
	"gearcore/internal/infra/persistence/postgres"
	"gearcore/internal/infra/persistence/redis"
	"gearcore/internal/infra/persistence/sqlite"
)

// OpenRecordGateway selects the remote persistence backend. An empty driver
// means sqlite.
//
//	memory:   in-process only (tests / ephemeral)
//	sqlite:   embedded file at SQLitePath
//	postgres: PostgreSQL server at PostgresDSN
//	redis:    Redis server at RedisAddr, keys under RedisPrefix
func OpenRecordGateway(ctx context.Context, cfg config.StorageConfig) (RecordGateway, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return memory.NewGateway(), nil
	case config.StorageSQLite:
		g, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.StoragePostgres:
		g, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return g, nil
	case config.StorageRedis:
		g, err := redis.Open(ctx, cfg.RedisAddr, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// PolicyFromConfig builds the category policy declared in configuration.
func PolicyFromConfig(cfg config.Config) CategoryPolicy {
	return CategoryPolicy{QuantityTracked: cfg.QuantityTracked(), Prefixes: cfg.Prefixes()}
}

// SyncOptionsFromConfig maps the sync section onto queue options.
func SyncOptionsFromConfig(cfg config.SyncConfig) []SyncOption {
	return []SyncOption{WithSyncMaxAttempts(cfg.MaxAttempts), WithSyncBackoff(cfg.Backoff)}
}
