package syncengine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskmaster/syncserver/internal/store"
)

// DefaultPullLimit and MaxPullLimit bound the `limit` query parameter
// (spec.md §4.5: "limit=<n≤500, default 100>"); httpapi rejects
// non-positive values, and Pull itself substitutes DefaultPullLimit for 0
// and clamps anything above MaxPullLimit.
const (
	DefaultPullLimit = 100
	MaxPullLimit     = 500
)

// Pull runs the pull procedure: every task, comment, and tombstone touched
// in the organization since `since`, excluding changes the calling device
// itself authored, oldest change first. limit bounds each entity type's
// page (spec.md §4.5); pass 0 to use DefaultPullLimit.
func (e *Engine) Pull(ctx context.Context, orgID, userID, deviceID string, since time.Time, limit int) (*PullResult, error) {
	if limit <= 0 {
		limit = DefaultPullLimit
	}
	if limit > MaxPullLimit {
		limit = MaxPullLimit
	}
	pullPageSize := limit
	startedAt := time.Now()
	logID := newID()

	tx, err := e.store.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}
	if err := e.store.OpenSyncLog(ctx, tx, logID, &deviceID, &userID, store.SyncTypePull, startedAt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}

	// The three entity-type queries are independent reads, each run on the
	// pool outside any transaction (so they do not share one snapshot); fan
	// them out concurrently rather than paying their latency serially.
	var tasks []*store.Task
	var comments []*store.Comment
	var tombstones []*store.Tombstone

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = e.store.ListTasksUpdatedSince(gctx, orgID, since, deviceID, pullPageSize+1)
		return err
	})
	g.Go(func() error {
		var err error
		comments, err = e.store.ListCommentsUpdatedSince(gctx, orgID, since, deviceID, pullPageSize+1)
		return err
	})
	g.Go(func() error {
		var err error
		tombstones, err = e.store.ListTombstonesSince(gctx, orgID, since, time.Now(), deviceID, pullPageSize+1)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}

	hasMore := len(tasks) > pullPageSize || len(comments) > pullPageSize || len(tombstones) > pullPageSize
	tasks = truncateTasks(tasks, pullPageSize)
	comments = truncateComments(comments, pullPageSize)
	tombstones = truncateTombstones(tombstones, pullPageSize)

	taskPayloads := make([]TaskPayload, 0, len(tasks))
	for _, t := range tasks {
		taskPayloads = append(taskPayloads, taskToMap(t))
	}
	commentPayloads := make([]CommentPayload, 0, len(comments))
	for _, c := range comments {
		commentPayloads = append(commentPayloads, commentToMap(c))
	}
	tombstonePayloads := make([]TombstonePayload, 0, len(tombstones))
	for _, tomb := range tombstones {
		tombstonePayloads = append(tombstonePayloads, tombstoneToMap(tomb))
	}

	if err := e.store.TouchDeviceSyncTime(ctx, deviceID, startedAt); err != nil {
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}

	completedAt := time.Now()
	tx2, err := e.store.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}
	counters := store.SyncLogCounters{Pulled: len(taskPayloads) + len(commentPayloads) + len(tombstonePayloads)}
	if err := e.store.CloseSyncLog(ctx, tx2, logID, counters, store.SyncStatusSuccess, nil, nil, completedAt, startedAt); err != nil {
		_ = tx2.Rollback(ctx)
		return nil, fmt.Errorf("syncengine: pull: %w", err)
	}
	if err := tx2.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncengine: pull: commit: %w", err)
	}

	orgClock, err := e.OrganizationVectorClock(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: pull: org clock: %w", err)
	}

	return &PullResult{
		Tasks:             taskPayloads,
		Comments:          commentPayloads,
		Tombstones:        tombstonePayloads,
		ServerVectorClock: orgClock,
		HasMore:           hasMore,
		Timestamp:         completedAt,
	}, nil
}

func truncateTasks(t []*store.Task, n int) []*store.Task {
	if len(t) > n {
		return t[:n]
	}
	return t
}

func truncateComments(c []*store.Comment, n int) []*store.Comment {
	if len(c) > n {
		return c[:n]
	}
	return c
}

func truncateTombstones(t []*store.Tombstone, n int) []*store.Tombstone {
	if len(t) > n {
		return t[:n]
	}
	return t
}

func tombstoneToMap(t *store.Tombstone) TombstonePayload {
	return map[string]any{
		"id":                t.ID,
		"entityType":        string(t.EntityType),
		"entityId":          t.EntityID,
		"vectorClock":       t.VectorClock,
		"entitySnapshot":    t.EntitySnapshot,
		"deletedBy":         t.DeletedBy,
		"deletedFromDevice": t.DeletedFromDevice,
		"deletedAt":         t.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		"expiresAt":         t.ExpiresAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}
