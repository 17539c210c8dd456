package main

import (
	"context"
	"fmt"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/store"
)

// backend is the block-list gatectl operates on.
type backend struct {
	words  store.WordStore
	cached *store.CachedWordStore
	close  func()
}

// openBackend returns the SQLite store when --sqlite is set, otherwise the
// shared Postgres/Redis store from the gate configuration.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	if sqlitePath != "" {
		s, err := store.OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return &backend{words: s, close: func() { s.Close() }}, nil
	}

	pool, err := store.OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	rdb := store.NewRedis(cfg.Redis)
	if rdb != nil {
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			pool.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	cached := store.NewCachedWordStore(pool, rdb)
	return &backend{
		words:  cached,
		cached: cached,
		close: func() {
			if rdb != nil {
				rdb.Close()
			}
			pool.Close()
		},
	}, nil
}
