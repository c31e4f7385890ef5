package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
)

// GetDevice returns a device by id, scoped to the owning user, or
// ErrNotFound if it does not exist or belongs to someone else — the push
// and pull handlers use this to turn an unowned X-Device-Id into the spec's
// `400 INVALID_DEVICE` response.
func (s *Store) GetDevice(ctx context.Context, userID, deviceID string) (*Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, device_fingerprint,
		vector_clock, last_sync_at, is_active, created_at, updated_at
		FROM devices WHERE id = ? AND user_id = ?`, deviceID, userID)

	var (
		d                        Device
		clockRaw                 string
		lastSyncMS               sql.NullInt64
		isActive                 int
		createdAtMS, updatedAtMS int64
	)

	err := row.Scan(&d.ID, &d.UserID, &d.DeviceFingerprint, &clockRaw, &lastSyncMS,
		&isActive, &createdAtMS, &updatedAtMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get device: %w", err)
	}

	d.VectorClock = unmarshalClock(clockRaw)
	d.LastSyncAt = fromEpochMSNull(lastSyncMS)
	d.IsActive = isActive != 0
	d.CreatedAt = fromEpochMS(createdAtMS)
	d.UpdatedAt = fromEpochMS(updatedAtMS)

	return &d, nil
}

// MergeDeviceClock merges incoming into the device's stored vector clock
// and stamps last_sync_at, inside the caller's pinned push transaction.
func (s *Store) MergeDeviceClock(ctx context.Context, tx *ImmediateTx, deviceID string, incoming clock.Clock, at time.Time) error {
	row := tx.QueryRowContext(ctx, `SELECT vector_clock FROM devices WHERE id = ?`, deviceID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fmt.Errorf("store: read device clock: %w", err)
	}

	merged := clock.Merge(unmarshalClock(raw), incoming)
	mergedRaw, err := marshalClock(merged)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE devices SET vector_clock=?, last_sync_at=?, updated_at=?
		WHERE id = ?`, mergedRaw, epochMS(at), epochMS(at), deviceID)
	if err != nil {
		return fmt.Errorf("store: merge device clock: %w", err)
	}
	return nil
}

// TouchDeviceSyncTime stamps last_sync_at without touching the clock, used
// by pull (which does not contribute new clock components).
func (s *Store) TouchDeviceSyncTime(ctx context.Context, deviceID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE devices SET last_sync_at=?, updated_at=? WHERE id=?`,
		epochMS(at), epochMS(at), deviceID)
	if err != nil {
		return fmt.Errorf("store: touch device sync time: %w", err)
	}
	return nil
}
