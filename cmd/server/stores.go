package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/community-rankings/config"
	"github.com/alem-hub/community-rankings/internal/domain/leaderboard"
	"github.com/alem-hub/community-rankings/internal/domain/store"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/community-rankings/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/community-rankings/internal/infrastructure/scheduler/jobs"
	httpapi "github.com/alem-hub/community-rankings/internal/interface/http"
	"github.com/alem-hub/community-rankings/internal/interface/http/handlers"
)

// openedStore - хранилище документов выбранного драйвера.
type openedStore struct {
	docs   store.DocumentStore
	pinger handlers.Pinger
	close  func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*openedStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		docs := memory.NewDocStore()
		return &openedStore{docs: docs, pinger: docs, close: func() {}}, nil

	case config.DriverSQLite:
		docs, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &openedStore{docs: docs, pinger: docs, close: func() { _ = docs.Close() }}, nil

	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Store.DatabaseURL
		if cfg.Store.MaxConns > 0 {
			pgCfg.MaxConns = cfg.Store.MaxConns
		}
		if cfg.Store.MinConns > 0 {
			pgCfg.MinConns = cfg.Store.MinConns
		}
		if cfg.Store.MaxConnLifetime > 0 {
			pgCfg.MaxConnLifetime = cfg.Store.MaxConnLifetime
		}
		if cfg.Store.ConnectTimeout > 0 {
			pgCfg.ConnectTimeout = cfg.Store.ConnectTimeout
		}

		conn, err := postgres.Dial(ctx, pgCfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		docs := postgres.NewDocStore(conn)
		return &openedStore{docs: docs, pinger: docs, close: conn.Close}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// openedPageCache - кеш страниц лидерборда. sweeper задан только для кеша
// в процессе: Redis удаляет просроченные ключи сам.
type openedPageCache struct {
	backend     string
	cache       leaderboard.PageCache
	invalidator httpapi.CacheInvalidator
	sweeper     jobs.Sweeper
	pinger      handlers.Pinger
	close       func() error
}

func openPageCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*openedPageCache, error) {
	if !cfg.Redis.Enabled {
		c := memory.NewPageCache(cfg.Leaderboard.CacheTTL)
		return &openedPageCache{
			backend:     "memory",
			cache:       c,
			invalidator: c,
			sweeper:     c,
			close:       func() error { return nil },
		}, nil
	}

	redisCfg := redis.DefaultConfig()
	redisCfg.Host = cfg.Redis.Host
	redisCfg.Port = cfg.Redis.Port
	redisCfg.Password = cfg.Redis.Password
	redisCfg.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		redisCfg.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.KeyPrefix != "" {
		redisCfg.KeyPrefix = cfg.Redis.KeyPrefix
	}
	if cfg.Redis.Timeout > 0 {
		redisCfg.DialTimeout = cfg.Redis.Timeout
		redisCfg.ReadTimeout = cfg.Redis.Timeout
		redisCfg.WriteTimeout = cfg.Redis.Timeout
	}

	c, err := redis.NewPageCache(ctx, redisCfg)
	if err != nil {
		return nil, err
	}
	return &openedPageCache{
		backend:     "redis",
		cache:       redis.NewGuardedPageCache(c, cfg.Redis.BreakerThreshold, cfg.Redis.BreakerCoolDown, logger),
		invalidator: c,
		pinger:      c,
		close:       c.Close,
	}, nil
}
