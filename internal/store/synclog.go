package store

import (
	"context"
	"fmt"
	"time"
)

// OpenSyncLog inserts the initial row for a push, pull, or conflict-
// resolution request and returns its id. CloseSyncLog stamps the terminal
// counters and status once the request completes.
func (s *Store) OpenSyncLog(ctx context.Context, tx *ImmediateTx, id string, deviceID, userID *string, syncType SyncType, startedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sync_logs
		(id, device_id, user_id, sync_type, status, metadata, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		id, deviceID, userID, syncType, SyncStatusSuccess, "{}", epochMS(startedAt))
	if err != nil {
		return fmt.Errorf("store: open sync log: %w", err)
	}
	return nil
}

// SyncLogCounters bundles the terminal counters CloseSyncLog stamps.
type SyncLogCounters struct {
	Pushed            int
	Pulled            int
	ConflictsDetected int
	ConflictsResolved int
}

// CloseSyncLog stamps a sync log's terminal counters, status, and duration.
func (s *Store) CloseSyncLog(ctx context.Context, tx *ImmediateTx, id string, counters SyncLogCounters, status SyncStatus, syncErr *string, metadata map[string]any, completedAt, startedAt time.Time) error {
	metadataRaw, err := marshalJSON(metadata)
	if err != nil {
		return err
	}
	durationMS := completedAt.Sub(startedAt).Milliseconds()

	_, err = tx.ExecContext(ctx, `UPDATE sync_logs SET pushed_count=?, pulled_count=?,
		conflicts_detected=?, conflicts_resolved=?, duration_ms=?, status=?, error=?,
		metadata=?, completed_at=? WHERE id = ?`,
		counters.Pushed, counters.Pulled, counters.ConflictsDetected, counters.ConflictsResolved,
		durationMS, status, syncErr, metadataRaw, epochMS(completedAt), id)
	if err != nil {
		return fmt.Errorf("store: close sync log: %w", err)
	}
	return nil
}

// AverageSyncDurationMS returns the average duration, in milliseconds, of
// successful sync log rows created since `since`. Returns 0 if none exist.
// Supplements the spec's metrics design note (§9) with a correct
// implementation of the original's intended average-duration aggregation.
func (s *Store) AverageSyncDurationMS(ctx context.Context, since time.Time) (float64, error) {
	var avg sqlNullFloat
	row := s.db.QueryRowContext(ctx, `SELECT avg(duration_ms) FROM sync_logs
		WHERE status = ? AND created_at >= ?`, SyncStatusSuccess, epochMS(since))
	if err := row.Scan(&avg); err != nil {
		return 0, fmt.Errorf("store: average sync duration: %w", err)
	}
	if !avg.valid {
		return 0, nil
	}
	return avg.value, nil
}

type sqlNullFloat struct {
	value float64
	valid bool
}

func (n *sqlNullFloat) Scan(src any) error {
	if src == nil {
		n.valid = false
		return nil
	}
	switch v := src.(type) {
	case float64:
		n.value, n.valid = v, true
	case int64:
		n.value, n.valid = float64(v), true
	default:
		return fmt.Errorf("store: unexpected avg scan type %T", src)
	}
	return nil
}
