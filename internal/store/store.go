package store

import (
	"context"
	"time"

	"github.com/me/gametools/pkg/model"
)

// Store defines the persistence layer for the runtime history.
type Store interface {
	// History
	RecordHistory(ctx context.Context, entry *model.HistoryEntry) error
	ListHistory(ctx context.Context, opts model.ListOptions) ([]*model.HistoryEntry, int, error)
	PruneHistory(ctx context.Context, before time.Time) (int64, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
