package storage

import (
	"context"
	"time"

	"finchat/internal/config"
	"finchat/pkg/logger"
)

// New creates and initializes the configured storage. If that fails it
// falls back to memory storage so the server can still start.
func New(cfg config.StorageConfig) Storage {
	var store Storage

	switch cfg.Type {
	case "disk":
		store = NewDiskStorage(cfg.DataDir, cfg.CacheSize)
	case "sqlite":
		store = NewSQLiteStorage(cfg.DataDir)
	default:
		store = NewMemoryStorage()
	}

	if err := store.Init(); err != nil {
		logger.Errorf("Failed to initialize %s storage: %v", cfg.Type, err)
		store = NewMemoryStorage()
		store.Init()
	}
	return store
}

// RunBackups calls Backup every interval until ctx is done.
func RunBackups(ctx context.Context, store Storage, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := store.Backup(); err != nil {
				logger.Errorf("Storage backup failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
