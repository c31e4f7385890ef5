package store

import (
	"context"
	"fmt"
)

// AppendTaskHistory writes an append-only audit row for an accepted task
// state change. Never updated or deleted.
func (s *Store) AppendTaskHistory(ctx context.Context, tx *ImmediateTx, h *TaskHistory) error {
	changesRaw, err := marshalJSON(h.Changes)
	if err != nil {
		return err
	}
	previousRaw, err := marshalJSON(h.PreviousState)
	if err != nil {
		return err
	}
	clockRaw, err := marshalClock(h.VectorClock)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO task_history
		(id, task_id, user_id, device_id, change_type, changes, previous_state, vector_clock, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		h.ID, h.TaskID, h.UserID, h.DeviceID, h.ChangeType, changesRaw, previousRaw, clockRaw, epochMS(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: append task history: %w", err)
	}
	return nil
}
