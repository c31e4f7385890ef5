package syncengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

// Engine orchestrates the push/pull protocol, conflict detection and
// auto-resolution, tombstone writes, and manual conflict resolution over an
// entity store.
type Engine struct {
	store             *store.Store
	logger            *slog.Logger
	tombstoneRetention time.Duration
}

// New builds an Engine. tombstoneRetention is the window (spec.md default:
// 90 days) a deletion's tombstone survives before the periodic sweeper
// removes it.
func New(st *store.Store, logger *slog.Logger, tombstoneRetention time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, logger: logger, tombstoneRetention: tombstoneRetention}
}

// OrganizationVectorClock computes the component-wise maximum of every live
// task and comment vector clock in the organization. Computed on demand,
// never persisted (spec.md §5).
func (e *Engine) OrganizationVectorClock(ctx context.Context, orgID string) (clock.Clock, error) {
	taskClocks, err := e.store.AllLiveTaskClocks(ctx, orgID)
	if err != nil {
		return nil, err
	}
	commentClocks, err := e.store.AllLiveCommentClocks(ctx, orgID)
	if err != nil {
		return nil, err
	}

	agg := clock.New()
	for _, raw := range taskClocks {
		agg = clock.Merge(agg, decodeClockJSON(raw))
	}
	for _, raw := range commentClocks {
		agg = clock.Merge(agg, decodeClockJSON(raw))
	}
	return agg, nil
}

func newID() string {
	return uuid.NewString()
}
