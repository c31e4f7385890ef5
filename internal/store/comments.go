package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const commentColumns = `id, task_id, parent_id, author_id, content, is_edited,
	version, vector_clock, last_modified_by, last_modified_device,
	created_at, updated_at, deleted_at, deleted_from_device`

// GetCommentAny returns a comment regardless of soft-delete state, scoped
// through its parent task's organization.
func (s *Store) GetCommentAny(ctx context.Context, orgID, id string) (*Comment, error) {
	return s.getCommentAny(ctx, s.db, orgID, id)
}

// GetCommentAnyTx is the transactional variant of GetCommentAny.
func (s *Store) GetCommentAnyTx(ctx context.Context, tx *ImmediateTx, orgID, id string) (*Comment, error) {
	return s.getCommentAny(ctx, tx, orgID, id)
}

func (s *Store) getCommentAny(ctx context.Context, q querier, orgID, id string) (*Comment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+commentColumnsQualified()+` FROM comments c
		JOIN tasks t ON t.id = c.task_id
		WHERE t.organization_id = ? AND c.id = ?`, orgID, id)

	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get comment: %w", err)
	}
	return c, nil
}

func commentColumnsQualified() string {
	return "c.id, c.task_id, c.parent_id, c.author_id, c.content, c.is_edited, c.version, c.vector_clock, c.last_modified_by, c.last_modified_device, c.created_at, c.updated_at, c.deleted_at, c.deleted_from_device"
}

func scanComment(row *sql.Row) (*Comment, error) {
	var (
		c                              Comment
		parentID, authorID             sql.NullString
		lastModBy, lastModDevice       sql.NullString
		deletedFromDevice              sql.NullString
		isEdited                       int
		clockRaw                       string
		createdAtMS, updatedAtMS       int64
		deletedAtMS                    sql.NullInt64
	)

	err := row.Scan(&c.ID, &c.TaskID, &parentID, &authorID, &c.Content, &isEdited,
		&c.Version, &clockRaw, &lastModBy, &lastModDevice,
		&createdAtMS, &updatedAtMS, &deletedAtMS, &deletedFromDevice)
	if err != nil {
		return nil, err
	}

	c.ParentID = fromNullString(parentID)
	c.AuthorID = fromNullString(authorID)
	c.LastModifiedBy = fromNullString(lastModBy)
	c.LastModifiedDevice = fromNullString(lastModDevice)
	c.DeletedFromDevice = fromNullString(deletedFromDevice)
	c.IsEdited = isEdited != 0
	c.VectorClock = unmarshalClock(clockRaw)
	c.CreatedAt = fromEpochMS(createdAtMS)
	c.UpdatedAt = fromEpochMS(updatedAtMS)
	c.DeletedAt = fromEpochMSNull(deletedAtMS)

	return &c, nil
}

// InsertComment inserts a brand-new comment row.
func (s *Store) InsertComment(ctx context.Context, tx *ImmediateTx, c *Comment) error {
	clockRaw, err := marshalClock(c.VectorClock)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO comments (`+commentColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.ParentID, c.AuthorID, c.Content, boolToInt(c.IsEdited),
		c.Version, clockRaw, c.LastModifiedBy, c.LastModifiedDevice,
		epochMS(c.CreatedAt), epochMS(c.UpdatedAt), epochMSPtr(c.DeletedAt), c.DeletedFromDevice)
	if err != nil {
		return fmt.Errorf("store: insert comment: %w", err)
	}
	return nil
}

// UpdateComment overwrites the mutable fields of an existing comment.
func (s *Store) UpdateComment(ctx context.Context, tx *ImmediateTx, c *Comment) error {
	clockRaw, err := marshalClock(c.VectorClock)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE comments SET content=?, is_edited=?,
		version=?, vector_clock=?, last_modified_by=?, last_modified_device=?, updated_at=?
		WHERE id = ?`,
		c.Content, boolToInt(true), c.Version, clockRaw, c.LastModifiedBy,
		c.LastModifiedDevice, epochMS(c.UpdatedAt), c.ID)
	if err != nil {
		return fmt.Errorf("store: update comment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteComment marks a comment deleted without removing the row.
func (s *Store) SoftDeleteComment(ctx context.Context, tx *ImmediateTx, id string, deletedAt time.Time, deviceID *string, newClock string) error {
	result, err := tx.ExecContext(ctx, `UPDATE comments SET deleted_at=?, deleted_from_device=?,
		vector_clock=?, updated_at=? WHERE id=? AND deleted_at IS NULL`,
		epochMS(deletedAt), deviceID, newClock, epochMS(deletedAt), id)
	if err != nil {
		return fmt.Errorf("store: soft delete comment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCommentsUpdatedSince mirrors ListTasksUpdatedSince for comments,
// scoped by the organization of their parent task.
func (s *Store) ListCommentsUpdatedSince(ctx context.Context, orgID string, since time.Time, excludeDevice string, limit int) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+commentColumnsQualified()+` FROM comments c
		JOIN tasks t ON t.id = c.task_id
		WHERE t.organization_id = ? AND c.updated_at > ?
		AND (c.last_modified_device IS NULL OR c.last_modified_device != ?)
		ORDER BY c.updated_at ASC LIMIT ?`,
		orgID, epochMS(since), excludeDevice, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list comments since: %w", err)
	}
	defer rows.Close()

	var out []*Comment
	for rows.Next() {
		c, err := scanCommentRows(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCommentRows(rows *sql.Rows) (*Comment, error) {
	var (
		c                         Comment
		parentID, authorID        sql.NullString
		lastModBy, lastModDevice  sql.NullString
		deletedFromDevice         sql.NullString
		isEdited                  int
		clockRaw                  string
		createdAtMS, updatedAtMS  int64
		deletedAtMS               sql.NullInt64
	)

	err := rows.Scan(&c.ID, &c.TaskID, &parentID, &authorID, &c.Content, &isEdited,
		&c.Version, &clockRaw, &lastModBy, &lastModDevice,
		&createdAtMS, &updatedAtMS, &deletedAtMS, &deletedFromDevice)
	if err != nil {
		return nil, err
	}

	c.ParentID = fromNullString(parentID)
	c.AuthorID = fromNullString(authorID)
	c.LastModifiedBy = fromNullString(lastModBy)
	c.LastModifiedDevice = fromNullString(lastModDevice)
	c.DeletedFromDevice = fromNullString(deletedFromDevice)
	c.IsEdited = isEdited != 0
	c.VectorClock = unmarshalClock(clockRaw)
	c.CreatedAt = fromEpochMS(createdAtMS)
	c.UpdatedAt = fromEpochMS(updatedAtMS)
	c.DeletedAt = fromEpochMSNull(deletedAtMS)

	return &c, nil
}

// AllLiveCommentClocks returns the vector clock of every non-deleted
// comment in an organization, for organization-vector-clock aggregation.
func (s *Store) AllLiveCommentClocks(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT c.vector_clock FROM comments c
		JOIN tasks t ON t.id = c.task_id
		WHERE t.organization_id = ? AND c.deleted_at IS NULL`, orgID)
	if err != nil {
		return nil, fmt.Errorf("store: list live comment clocks: %w", err)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
