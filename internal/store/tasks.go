package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const taskColumns = `id, organization_id, project_id, title, description, status,
	priority, due_date, completed_at, position, tags, custom_fields,
	assigned_to, version, vector_clock, last_modified_by, last_modified_device,
	checksum, created_by, created_at, updated_at, deleted_at, deleted_from_device`

// GetTaskLive returns a task, excluding soft-deleted rows. Application code
// uses this path; it returns ErrNotFound both for missing rows and for rows
// outside org scope, matching the entity store's isolation guarantee.
func (s *Store) GetTaskLive(ctx context.Context, orgID, id string) (*Task, error) {
	return s.getTask(ctx, s.db, orgID, id, true)
}

// GetTaskAny returns a task regardless of soft-delete state. The sync
// engine uses this path for conflict detection and orphan checks.
func (s *Store) GetTaskAny(ctx context.Context, orgID, id string) (*Task, error) {
	return s.getTask(ctx, s.db, orgID, id, false)
}

// GetTaskAnyTx is the transactional variant of GetTaskAny, used inside a
// push's pinned ImmediateTx.
func (s *Store) GetTaskAnyTx(ctx context.Context, tx *ImmediateTx, orgID, id string) (*Task, error) {
	return s.getTask(ctx, tx, orgID, id, false)
}

func (s *Store) getTask(ctx context.Context, q querier, orgID, id string, liveOnly bool) (*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE organization_id = ? AND id = ?`
	if liveOnly {
		query += ` AND deleted_at IS NULL`
	}

	row := q.QueryRowContext(ctx, query, orgID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return t, nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var (
		t                                     Task
		dueDateMS, completedAtMS, deletedAtMS sql.NullInt64
		tagsRaw, customFieldsRaw, clockRaw    string
		assignedTo, lastModBy, lastModDevice  sql.NullString
		createdBy, deletedFromDevice          sql.NullString
		createdAtMS, updatedAtMS              int64
	)

	err := row.Scan(&t.ID, &t.OrganizationID, nullProjectID(&t), &t.Title, &t.Description,
		&t.Status, &t.Priority, &dueDateMS, &completedAtMS, &t.Position, &tagsRaw,
		&customFieldsRaw, &assignedTo, &t.Version, &clockRaw, &lastModBy, &lastModDevice,
		&t.Checksum, &createdBy, &createdAtMS, &updatedAtMS, &deletedAtMS, &deletedFromDevice)
	if err != nil {
		return nil, err
	}

	t.Tags = unmarshalStrings(tagsRaw)
	t.CustomFields = unmarshalMap(customFieldsRaw)
	t.VectorClock = unmarshalClock(clockRaw)
	t.AssignedTo = fromNullString(assignedTo)
	t.LastModifiedBy = fromNullString(lastModBy)
	t.LastModifiedDevice = fromNullString(lastModDevice)
	t.CreatedBy = fromNullString(createdBy)
	t.DeletedFromDevice = fromNullString(deletedFromDevice)
	t.DueDate = fromEpochMSNull(dueDateMS)
	t.CompletedAt = fromEpochMSNull(completedAtMS)
	t.DeletedAt = fromEpochMSNull(deletedAtMS)
	t.CreatedAt = fromEpochMS(createdAtMS)
	t.UpdatedAt = fromEpochMS(updatedAtMS)

	return &t, nil
}

// nullProjectID adapts Task.ProjectID (*string) to a sql.Scanner target.
func nullProjectID(t *Task) *projectIDScanner {
	return &projectIDScanner{t: t}
}

type projectIDScanner struct {
	t *Task
}

func (p *projectIDScanner) Scan(src any) error {
	if src == nil {
		p.t.ProjectID = nil
		return nil
	}
	switch v := src.(type) {
	case string:
		p.t.ProjectID = &v
	case []byte:
		s := string(v)
		p.t.ProjectID = &s
	default:
		return fmt.Errorf("store: unexpected project_id scan type %T", src)
	}
	return nil
}

// InsertTask inserts a brand-new task row.
func (s *Store) InsertTask(ctx context.Context, tx *ImmediateTx, t *Task) error {
	tagsRaw, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	customRaw, err := marshalJSON(t.CustomFields)
	if err != nil {
		return err
	}
	clockRaw, err := marshalClock(t.VectorClock)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OrganizationID, t.ProjectID, t.Title, t.Description, t.Status, t.Priority,
		epochMSPtr(t.DueDate), epochMSPtr(t.CompletedAt), t.Position, tagsRaw, customRaw,
		t.AssignedTo, t.Version, clockRaw, t.LastModifiedBy, t.LastModifiedDevice, t.Checksum,
		t.CreatedBy, epochMS(t.CreatedAt), epochMS(t.UpdatedAt), epochMSPtr(t.DeletedAt), t.DeletedFromDevice)
	if err != nil {
		return fmt.Errorf("store: insert task: %w", err)
	}
	return nil
}

// UpdateTask overwrites every mutable field of an existing task row.
func (s *Store) UpdateTask(ctx context.Context, tx *ImmediateTx, t *Task) error {
	tagsRaw, err := marshalJSON(t.Tags)
	if err != nil {
		return err
	}
	customRaw, err := marshalJSON(t.CustomFields)
	if err != nil {
		return err
	}
	clockRaw, err := marshalClock(t.VectorClock)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE tasks SET
		project_id=?, title=?, description=?, status=?, priority=?, due_date=?,
		completed_at=?, position=?, tags=?, custom_fields=?, assigned_to=?,
		version=?, vector_clock=?, last_modified_by=?, last_modified_device=?,
		checksum=?, updated_at=?
		WHERE organization_id = ? AND id = ?`,
		t.ProjectID, t.Title, t.Description, t.Status, t.Priority, epochMSPtr(t.DueDate),
		epochMSPtr(t.CompletedAt), t.Position, tagsRaw, customRaw, t.AssignedTo,
		t.Version, clockRaw, t.LastModifiedBy, t.LastModifiedDevice, t.Checksum,
		epochMS(t.UpdatedAt), t.OrganizationID, t.ID)
	if err != nil {
		return fmt.Errorf("store: update task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteTask marks a task deleted without removing the row.
func (s *Store) SoftDeleteTask(ctx context.Context, tx *ImmediateTx, orgID, id string, deletedAt time.Time, deviceID *string, newClock string) error {
	result, err := tx.ExecContext(ctx, `UPDATE tasks SET deleted_at=?, deleted_from_device=?,
		vector_clock=?, updated_at=? WHERE organization_id=? AND id=? AND deleted_at IS NULL`,
		epochMS(deletedAt), deviceID, newClock, epochMS(deletedAt), orgID, id)
	if err != nil {
		return fmt.Errorf("store: soft delete task: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasksUpdatedSince returns up to limit live-or-deleted tasks in an
// organization updated strictly after `since`, excluding the caller's own
// device's last modifications, ordered by updated_at ascending. Used by
// pull.
func (s *Store) ListTasksUpdatedSince(ctx context.Context, orgID string, since time.Time, excludeDevice string, limit int) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE organization_id = ? AND updated_at > ?
		AND (last_modified_device IS NULL OR last_modified_device != ?)
		ORDER BY updated_at ASC LIMIT ?`,
		orgID, epochMS(since), excludeDevice, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks since: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTaskRows(rows *sql.Rows) (*Task, error) {
	var (
		t                                      Task
		dueDateMS, completedAtMS, deletedAtMS  sql.NullInt64
		tagsRaw, customFieldsRaw, clockRaw     string
		assignedTo, lastModBy, lastModDevice   sql.NullString
		createdBy, deletedFromDevice           sql.NullString
		createdAtMS, updatedAtMS               int64
	)

	err := rows.Scan(&t.ID, &t.OrganizationID, nullProjectID(&t), &t.Title, &t.Description,
		&t.Status, &t.Priority, &dueDateMS, &completedAtMS, &t.Position, &tagsRaw,
		&customFieldsRaw, &assignedTo, &t.Version, &clockRaw, &lastModBy, &lastModDevice,
		&t.Checksum, &createdBy, &createdAtMS, &updatedAtMS, &deletedAtMS, &deletedFromDevice)
	if err != nil {
		return nil, err
	}

	t.Tags = unmarshalStrings(tagsRaw)
	t.CustomFields = unmarshalMap(customFieldsRaw)
	t.VectorClock = unmarshalClock(clockRaw)
	t.AssignedTo = fromNullString(assignedTo)
	t.LastModifiedBy = fromNullString(lastModBy)
	t.LastModifiedDevice = fromNullString(lastModDevice)
	t.CreatedBy = fromNullString(createdBy)
	t.DeletedFromDevice = fromNullString(deletedFromDevice)
	t.DueDate = fromEpochMSNull(dueDateMS)
	t.CompletedAt = fromEpochMSNull(completedAtMS)
	t.DeletedAt = fromEpochMSNull(deletedAtMS)
	t.CreatedAt = fromEpochMS(createdAtMS)
	t.UpdatedAt = fromEpochMS(updatedAtMS)

	return &t, nil
}

// AllLiveTaskClocks returns the vector clock of every non-deleted task in
// an organization, for organization-vector-clock aggregation.
func (s *Store) AllLiveTaskClocks(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT vector_clock FROM tasks
		WHERE organization_id = ? AND deleted_at IS NULL`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list live task clocks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
