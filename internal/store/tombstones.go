package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertTombstone records a deletion for propagation to devices that have
// not yet pulled it. expires_at is always created_at + the store's
// configured retention window; callers pass it explicitly so the retention
// period is a config concern, not hardcoded here.
func (s *Store) InsertTombstone(ctx context.Context, tx *ImmediateTx, t *Tombstone) error {
	clockRaw, err := marshalClock(t.VectorClock)
	if err != nil {
		return err
	}
	snapshotRaw, err := marshalJSON(t.EntitySnapshot)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tombstones
		(id, organization_id, entity_type, entity_id, deleted_by, deleted_from_device,
		 vector_clock, entity_snapshot, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OrganizationID, t.EntityType, t.EntityID, t.DeletedBy, t.DeletedFromDevice,
		clockRaw, snapshotRaw, epochMS(t.CreatedAt), epochMS(t.ExpiresAt))
	if err != nil {
		return fmt.Errorf("store: insert tombstone: %w", err)
	}
	return nil
}

// ListTombstonesSince returns up to limit unexpired tombstones created
// after `since`, excluding the caller's own device, ordered by created_at
// ascending.
func (s *Store) ListTombstonesSince(ctx context.Context, orgID string, since, now time.Time, excludeDevice string, limit int) ([]*Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, organization_id, entity_type, entity_id,
		deleted_by, deleted_from_device, vector_clock, entity_snapshot, created_at, expires_at
		FROM tombstones
		WHERE organization_id = ? AND created_at > ? AND expires_at > ?
		AND (deleted_from_device IS NULL OR deleted_from_device != ?)
		ORDER BY created_at ASC LIMIT ?`,
		orgID, epochMS(since), epochMS(now), excludeDevice, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list tombstones since: %w", err)
	}
	defer rows.Close()

	var out []*Tombstone
	for rows.Next() {
		var (
			t                        Tombstone
			deletedBy, deletedDevice sql.NullString
			clockRaw, snapshotRaw    string
			createdAtMS, expiresAtMS int64
		)
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.EntityType, &t.EntityID,
			&deletedBy, &deletedDevice, &clockRaw, &snapshotRaw, &createdAtMS, &expiresAtMS); err != nil {
			return nil, err
		}
		t.DeletedBy = fromNullString(deletedBy)
		t.DeletedFromDevice = fromNullString(deletedDevice)
		t.VectorClock = unmarshalClock(clockRaw)
		t.EntitySnapshot = unmarshalMap(snapshotRaw)
		t.CreatedAt = fromEpochMS(createdAtMS)
		t.ExpiresAt = fromEpochMS(expiresAtMS)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// SweepExpired deletes every tombstone whose expires_at has passed, and
// reports how many rows were removed. Run periodically by internal/sweeper.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tombstones WHERE expires_at <= ?`, epochMS(now))
	if err != nil {
		return 0, fmt.Errorf("store: sweep expired tombstones: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: sweep rows affected: %w", err)
	}
	return n, nil
}
