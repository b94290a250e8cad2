package queueaccess

import (
	"context"
	"fmt"

	"reelforge/internal/config"
	"reelforge/internal/queue"
	"reelforge/internal/queue/pgstore"
)

// OpenStore opens the job store selected by [store] backend.
func OpenStore(ctx context.Context, cfg *config.Config) (queue.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("open job store: config is required")
	}
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return queue.NewMemoryStore(), nil
	case config.BackendPostgres:
		store, err := pgstore.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendSQLite, "":
		store, err := queue.Open(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("open job store: unknown backend %q", cfg.Store.Backend)
	}
}
