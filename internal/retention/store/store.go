// Package store persists the mapping from content id to planned deletion
// time. An entry exists exactly while the scheduler is committed to
// revisiting that id; deleted and exempted posts have no entry.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zebraclach/twitter-autodelete-bot/internal/common/config"
	"github.com/zebraclach/twitter-autodelete-bot/internal/common/logger"
)

// Store is the schedule persistence contract. Load on a missing backing
// store returns an empty map, not an error. Upsert overwrites any existing
// entry for the id.
type Store interface {
	Load(ctx context.Context) (map[string]time.Time, error)
	Save(ctx context.Context, entries map[string]time.Time) error
	Upsert(ctx context.Context, id string, deleteAt time.Time) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// New builds a store from configuration.
func New(cfg config.StoreConfig, log *logger.Logger) (Store, error) {
	switch cfg.Driver {
	case "file":
		return NewFileStore(cfg.Path, log), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
