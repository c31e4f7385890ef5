package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertConflict persists a conflict row, either auto-resolved (for audit)
// or unresolved (surfaced for manual resolution).
func (s *Store) InsertConflict(ctx context.Context, tx *ImmediateTx, c *Conflict) error {
	localRaw, err := marshalJSON(c.LocalVersion)
	if err != nil {
		return err
	}
	serverRaw, err := marshalJSON(c.ServerVersion)
	if err != nil {
		return err
	}
	localClockRaw, err := marshalClock(c.LocalVectorClock)
	if err != nil {
		return err
	}
	serverClockRaw, err := marshalClock(c.ServerVectorClock)
	if err != nil {
		return err
	}

	var resolvedPayloadRaw sql.NullString
	if c.ResolvedPayload != nil {
		raw, err := marshalJSON(c.ResolvedPayload)
		if err != nil {
			return err
		}
		resolvedPayloadRaw = sql.NullString{String: raw, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO conflicts
		(id, organization_id, entity_type, entity_id, device_id, user_id,
		 local_version, server_version, local_vector_clock, server_vector_clock,
		 reason, resolution_strategy, resolved_payload, resolved_by, created_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.OrganizationID, c.EntityType, c.EntityID, c.DeviceID, c.UserID,
		localRaw, serverRaw, localClockRaw, serverClockRaw, c.Reason,
		c.Strategy, resolvedPayloadRaw, c.ResolvedBy, epochMS(c.CreatedAt), epochMSPtr(c.ResolvedAt))
	if err != nil {
		return fmt.Errorf("store: insert conflict: %w", err)
	}
	return nil
}

// ListUnresolvedConflicts returns every unresolved conflict in an
// organization, newest first.
func (s *Store) ListUnresolvedConflicts(ctx context.Context, orgID string) ([]*Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conflictColumns+` FROM conflicts
		WHERE organization_id = ? AND resolved_at IS NULL ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list unresolved conflicts: %w", err)
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		c, err := scanConflictRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConflict returns a conflict scoped to the caller's organization, or
// ErrNotFound if it does not exist or belongs to another organization —
// the manual-resolution handler uses this to produce the spec's `404` for
// a conflict id outside the caller's scope.
func (s *Store) GetConflict(ctx context.Context, orgID, id string) (*Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts
		WHERE organization_id = ? AND id = ?`, orgID, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conflict: %w", err)
	}
	return c, nil
}

// ResolveConflict marks a conflict resolved with the chosen strategy and
// payload.
func (s *Store) ResolveConflict(ctx context.Context, id string, strategy ResolutionStrategy, payload map[string]any, resolvedBy string, at time.Time) error {
	payloadRaw, err := marshalJSON(payload)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE conflicts SET resolution_strategy=?,
		resolved_payload=?, resolved_by=?, resolved_at=? WHERE id = ? AND resolved_at IS NULL`,
		strategy, payloadRaw, resolvedBy, epochMS(at), id)
	if err != nil {
		return fmt.Errorf("store: resolve conflict: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const conflictColumns = `id, organization_id, entity_type, entity_id, device_id, user_id,
	local_version, server_version, local_vector_clock, server_vector_clock,
	reason, resolution_strategy, resolved_payload, resolved_by, created_at, resolved_at`

func scanConflict(row *sql.Row) (*Conflict, error) {
	var c Conflict
	var (
		deviceID, userID, resolvedBy     sql.NullString
		strategy, resolvedPayload        sql.NullString
		localRaw, serverRaw              string
		localClockRaw, serverClockRaw    string
		createdAtMS                      int64
		resolvedAtMS                     sql.NullInt64
	)

	err := row.Scan(&c.ID, &c.OrganizationID, &c.EntityType, &c.EntityID, &deviceID, &userID,
		&localRaw, &serverRaw, &localClockRaw, &serverClockRaw, &c.Reason, &strategy,
		&resolvedPayload, &resolvedBy, &createdAtMS, &resolvedAtMS)
	if err != nil {
		return nil, err
	}
	fillConflict(&c, deviceID, userID, strategy, resolvedPayload, resolvedBy,
		localRaw, serverRaw, localClockRaw, serverClockRaw, createdAtMS, resolvedAtMS)
	return &c, nil
}

func scanConflictRows(rows *sql.Rows) (*Conflict, error) {
	var c Conflict
	var (
		deviceID, userID, resolvedBy     sql.NullString
		strategy, resolvedPayload        sql.NullString
		localRaw, serverRaw              string
		localClockRaw, serverClockRaw    string
		createdAtMS                      int64
		resolvedAtMS                     sql.NullInt64
	)

	err := rows.Scan(&c.ID, &c.OrganizationID, &c.EntityType, &c.EntityID, &deviceID, &userID,
		&localRaw, &serverRaw, &localClockRaw, &serverClockRaw, &c.Reason, &strategy,
		&resolvedPayload, &resolvedBy, &createdAtMS, &resolvedAtMS)
	if err != nil {
		return nil, err
	}
	fillConflict(&c, deviceID, userID, strategy, resolvedPayload, resolvedBy,
		localRaw, serverRaw, localClockRaw, serverClockRaw, createdAtMS, resolvedAtMS)
	return &c, nil
}

func fillConflict(c *Conflict, deviceID, userID, strategy, resolvedPayload, resolvedBy sql.NullString,
	localRaw, serverRaw, localClockRaw, serverClockRaw string, createdAtMS int64, resolvedAtMS sql.NullInt64) {
	c.DeviceID = fromNullString(deviceID)
	c.UserID = fromNullString(userID)
	c.ResolvedBy = fromNullString(resolvedBy)
	c.LocalVersion = unmarshalMap(localRaw)
	c.ServerVersion = unmarshalMap(serverRaw)
	c.LocalVectorClock = unmarshalClock(localClockRaw)
	c.ServerVectorClock = unmarshalClock(serverClockRaw)
	c.CreatedAt = fromEpochMS(createdAtMS)
	c.ResolvedAt = fromEpochMSNull(resolvedAtMS)
	if strategy.Valid {
		s := ResolutionStrategy(strategy.String)
		c.Strategy = &s
	}
	if resolvedPayload.Valid {
		c.ResolvedPayload = unmarshalMap(resolvedPayload.String)
	}
}
