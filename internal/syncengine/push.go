package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

// Push runs the full push procedure (spec.md §4.5) inside one pinned
// SQLite transaction: per-entity-type, per-change classification against
// server state, accepted/auto-resolved writes, conflict and tombstone
// records, device-clock merge, and sync-log closure. A single change that
// errors is logged and skipped; all other changes in the same push still
// commit.
func (e *Engine) Push(ctx context.Context, orgID, userID, deviceID string, req PushRequest) (*PushResult, error) {
	startedAt := time.Now()
	logID := newID()

	tx, err := e.store.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncengine: push: %w", err)
	}

	if err := e.store.OpenSyncLog(ctx, tx, logID, &deviceID, &userID, store.SyncTypePush, startedAt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("syncengine: push: %w", err)
	}

	var processed int
	var conflicts []ConflictSummary
	var conflictsDetected, conflictsResolved int
	priorities := map[string]int{}

	for _, ch := range req.Tasks {
		ok, summary, resolved, err := e.processTaskChange(ctx, tx, orgID, userID, deviceID, ch)
		if err != nil {
			e.logger.Error("push: task change failed, skipping", "id", ch.ID, "error", err)
			continue
		}
		if ok {
			processed++
			priorities[ch.ID] = ChangePriority("task", ch.Operation, ch.Data)
		}
		if summary != nil {
			conflicts = append(conflicts, *summary)
			conflictsDetected++
		}
		if resolved {
			conflictsResolved++
		}
	}

	for _, ch := range req.Comments {
		ok, summary, resolved, err := e.processCommentChange(ctx, tx, orgID, userID, deviceID, ch)
		if err != nil {
			e.logger.Error("push: comment change failed, skipping", "id", ch.ID, "error", err)
			continue
		}
		if ok {
			processed++
			priorities[ch.ID] = ChangePriority("comment", ch.Operation, ch.Data)
		}
		if summary != nil {
			conflicts = append(conflicts, *summary)
			conflictsDetected++
		}
		if resolved {
			conflictsResolved++
		}
	}

	if err := e.store.MergeDeviceClock(ctx, tx, deviceID, req.VectorClock, startedAt); err != nil {
		errText := err.Error()
		_ = e.store.CloseSyncLog(ctx, tx, logID, store.SyncLogCounters{}, store.SyncStatusFailed, &errText, nil, time.Now(), startedAt)
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("syncengine: push: %w", err)
	}

	completedAt := time.Now()
	counters := store.SyncLogCounters{
		Pushed:            processed,
		ConflictsDetected: conflictsDetected,
		ConflictsResolved: conflictsResolved,
	}
	metadata := map[string]any{}
	if len(priorities) > 0 {
		metadata["priorities"] = priorities
	}
	if err := e.store.CloseSyncLog(ctx, tx, logID, counters, store.SyncStatusSuccess, nil, metadata, completedAt, startedAt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("syncengine: push: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncengine: push: commit: %w", err)
	}

	orgClock, err := e.OrganizationVectorClock(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: push: org clock: %w", err)
	}

	return &PushResult{
		Processed:         processed,
		Conflicts:         conflicts,
		ServerVectorClock: orgClock,
		Timestamp:         completedAt,
	}, nil
}

// processTaskChange applies one task change and reports whether it counted
// as processed, any conflict summary to surface, and whether a conflict was
// auto-resolved (for sync-log counters).
func (e *Engine) processTaskChange(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change) (bool, *ConflictSummary, bool, error) {
	switch ch.Operation {
	case OpCreate:
		existing, err := e.store.GetTaskAnyTx(ctx, tx, orgID, ch.ID)
		if err == nil {
			return e.updateTask(ctx, tx, orgID, userID, deviceID, ch, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, nil, false, err
		}
		return e.createTask(ctx, tx, orgID, userID, deviceID, ch)

	case OpUpdate:
		existing, err := e.store.GetTaskAnyTx(ctx, tx, orgID, ch.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Create-on-update: the client's creation push was lost.
			return e.createTask(ctx, tx, orgID, userID, deviceID, ch)
		}
		if err != nil {
			return false, nil, false, err
		}
		return e.updateTask(ctx, tx, orgID, userID, deviceID, ch, existing)

	case OpDelete:
		return e.deleteTask(ctx, tx, orgID, userID, deviceID, ch)

	default:
		return false, nil, false, fmt.Errorf("syncengine: unknown task operation %q", ch.Operation)
	}
}

func (e *Engine) createTask(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change) (bool, *ConflictSummary, bool, error) {
	now := time.Now()
	t := &store.Task{
		ID:                 ch.ID,
		OrganizationID:     orgID,
		Status:             store.StatusTodo,
		Priority:           store.PriorityMedium,
		Tags:               []string{},
		CustomFields:       map[string]any{},
		Version:            1,
		VectorClock:        fieldClock(ch.Data, "vectorClock"),
		LastModifiedBy:     &userID,
		LastModifiedDevice: &deviceID,
		CreatedBy:          &userID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if t.VectorClock.IsZero() {
		t.VectorClock = clock.Clock{deviceID: 1}
	}
	applyTaskFields(t, ch.Data)
	if err := t.RecomputeChecksum(); err != nil {
		return false, nil, false, err
	}

	if err := e.store.InsertTask(ctx, tx, t); err != nil {
		return false, nil, false, err
	}
	if err := e.recordTaskHistory(ctx, tx, t, userID, &deviceID, store.ChangeCreated, nil); err != nil {
		return false, nil, false, err
	}
	return true, nil, false, nil
}

func (e *Engine) updateTask(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change, server *store.Task) (bool, *ConflictSummary, bool, error) {
	incomingClock := fieldClock(ch.Data, "vectorClock")
	verdict, _ := DetectConflict(incomingClock, server.VectorClock)

	switch verdict {
	case VerdictReject:
		return false, nil, false, nil

	case VerdictNoop:
		// Clocks already agree: nothing to merge, but the push still counts
		// as processed and attribution advances (spec.md §8 scenario 1).
		server.LastModifiedBy = &userID
		server.LastModifiedDevice = &deviceID
		if err := e.store.UpdateTask(ctx, tx, server); err != nil {
			return false, nil, false, err
		}
		return true, nil, false, nil

	case VerdictAccept:
		applyTaskFields(server, ch.Data)
		server.VectorClock = incomingClock
		server.Version++
		server.LastModifiedBy = &userID
		server.LastModifiedDevice = &deviceID
		server.UpdatedAt = time.Now()
		if err := server.RecomputeChecksum(); err != nil {
			return false, nil, false, err
		}
		if err := e.store.UpdateTask(ctx, tx, server); err != nil {
			return false, nil, false, err
		}
		if err := e.recordTaskHistory(ctx, tx, server, userID, &deviceID, store.ChangeUpdated, nil); err != nil {
			return false, nil, false, err
		}
		return true, nil, false, nil

	default: // VerdictResolve
		incoming := *server
		incoming.VectorClock = incomingClock
		applyTaskFields(&incoming, ch.Data)

		resolution := ResolveTask(&incoming, server)
		localPayload := taskToMap(&incoming)
		serverPayload := taskToMap(server)

		if resolution.Merged != nil {
			resolution.Merged.LastModifiedBy = &userID
			resolution.Merged.LastModifiedDevice = &deviceID
			resolution.Merged.UpdatedAt = time.Now()
			if err := resolution.Merged.RecomputeChecksum(); err != nil {
				return false, nil, false, err
			}
			if err := e.store.UpdateTask(ctx, tx, resolution.Merged); err != nil {
				return false, nil, false, err
			}
			if err := e.recordTaskHistory(ctx, tx, resolution.Merged, userID, &deviceID, store.ChangeUpdated, nil); err != nil {
				return false, nil, false, err
			}
			strategy := store.ResolutionAutoResolved
			conflict := &store.Conflict{
				ID: newID(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: server.ID,
				DeviceID: &deviceID, UserID: &userID, LocalVersion: localPayload, ServerVersion: serverPayload,
				LocalVectorClock: incoming.VectorClock, ServerVectorClock: server.VectorClock,
				Reason: "Concurrent modification detected; auto-resolved.", Strategy: &strategy,
				ResolvedPayload: taskToMap(resolution.Merged), CreatedAt: time.Now(), ResolvedAt: ptrTime(time.Now()),
			}
			if err := e.store.InsertConflict(ctx, tx, conflict); err != nil {
				return false, nil, false, err
			}
			return true, nil, true, nil
		}

		reason := unresolvableReason(resolution.Unresolvable)
		conflict := &store.Conflict{
			ID: newID(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: server.ID,
			DeviceID: &deviceID, UserID: &userID, LocalVersion: localPayload, ServerVersion: serverPayload,
			LocalVectorClock: incoming.VectorClock, ServerVectorClock: server.VectorClock,
			Reason: reason, CreatedAt: time.Now(),
		}
		if err := e.store.InsertConflict(ctx, tx, conflict); err != nil {
			return false, nil, false, err
		}

		return false, &ConflictSummary{
			EntityType: string(store.EntityTask), EntityID: server.ID, ConflictReason: reason,
			ServerVersion: server.Version, ServerVectorClock: server.VectorClock,
		}, false, nil
	}
}

func (e *Engine) deleteTask(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change) (bool, *ConflictSummary, bool, error) {
	server, err := e.store.GetTaskAnyTx(ctx, tx, orgID, ch.ID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil, false, nil // absent: accept as no-op
	}
	if err != nil {
		return false, nil, false, err
	}
	if server.IsDeleted() {
		return true, nil, false, nil // already deleted: accept as no-op
	}

	incomingClock := fieldClock(ch.Data, "vectorClock")
	newClock := clock.Merge(server.VectorClock, incomingClock)
	newClockRaw, err := marshalClockString(newClock)
	if err != nil {
		return false, nil, false, err
	}

	now := time.Now()
	if err := e.store.SoftDeleteTask(ctx, tx, orgID, ch.ID, now, &deviceID, newClockRaw); err != nil {
		return false, nil, false, err
	}

	snapshot := taskToMap(server)
	if err := e.store.InsertTombstone(ctx, tx, &store.Tombstone{
		ID: newID(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: ch.ID,
		DeletedBy: &userID, DeletedFromDevice: &deviceID, VectorClock: newClock,
		EntitySnapshot: snapshot, CreatedAt: now, ExpiresAt: now.Add(e.tombstoneRetention),
	}); err != nil {
		return false, nil, false, err
	}

	if err := e.recordTaskHistory(ctx, tx, server, userID, &deviceID, store.ChangeDeleted, snapshot); err != nil {
		return false, nil, false, err
	}

	return true, nil, false, nil
}

// processCommentChange mirrors processTaskChange, with orphan handling: a
// comment whose parent task is absent or soft-deleted is silently dropped
// (counted as processed, no conflict raised) rather than created or
// updated; delete on such an orphan is accepted as a no-op.
func (e *Engine) processCommentChange(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change) (bool, *ConflictSummary, bool, error) {
	taskID := fieldString(ch.Data, "task_id", "")

	switch ch.Operation {
	case OpCreate:
		existing, err := e.store.GetCommentAnyTx(ctx, tx, orgID, ch.ID)
		if err == nil {
			return e.updateComment(ctx, tx, orgID, userID, deviceID, ch, existing)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return false, nil, false, err
		}
		if taskID == "" {
			return false, nil, false, fmt.Errorf("syncengine: comment %s missing task_id", ch.ID)
		}
		parent, err := e.store.GetTaskAnyTx(ctx, tx, orgID, taskID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && parent.IsDeleted()) {
			e.logger.Info("push: orphan comment dropped", "comment_id", ch.ID, "task_id", taskID)
			return true, nil, false, nil
		}
		if err != nil {
			return false, nil, false, err
		}
		return e.createComment(ctx, tx, userID, deviceID, taskID, ch)

	case OpUpdate:
		existing, err := e.store.GetCommentAnyTx(ctx, tx, orgID, ch.ID)
		if errors.Is(err, store.ErrNotFound) {
			if taskID == "" {
				return true, nil, false, nil
			}
			parent, perr := e.store.GetTaskAnyTx(ctx, tx, orgID, taskID)
			if errors.Is(perr, store.ErrNotFound) || (perr == nil && parent.IsDeleted()) {
				return true, nil, false, nil
			}
			if perr != nil {
				return false, nil, false, perr
			}
			return e.createComment(ctx, tx, userID, deviceID, taskID, ch)
		}
		if err != nil {
			return false, nil, false, err
		}
		return e.updateComment(ctx, tx, orgID, userID, deviceID, ch, existing)

	case OpDelete:
		existing, err := e.store.GetCommentAnyTx(ctx, tx, orgID, ch.ID)
		if errors.Is(err, store.ErrNotFound) {
			return true, nil, false, nil
		}
		if err != nil {
			return false, nil, false, err
		}
		if existing.IsDeleted() {
			return true, nil, false, nil
		}
		return e.deleteComment(ctx, tx, orgID, userID, deviceID, ch, existing)

	default:
		return false, nil, false, fmt.Errorf("syncengine: unknown comment operation %q", ch.Operation)
	}
}

func (e *Engine) createComment(ctx context.Context, tx *store.ImmediateTx, userID, deviceID, taskID string, ch Change) (bool, *ConflictSummary, bool, error) {
	now := time.Now()
	incomingClock := fieldClock(ch.Data, "vectorClock")
	if incomingClock.IsZero() {
		incomingClock = clock.Clock{deviceID: 1}
	}
	c := &store.Comment{
		ID: ch.ID, TaskID: taskID, AuthorID: &userID, Version: 1, VectorClock: incomingClock,
		LastModifiedBy: &userID, LastModifiedDevice: &deviceID, CreatedAt: now, UpdatedAt: now,
	}
	applyCommentFields(c, ch.Data)

	if err := e.store.InsertComment(ctx, tx, c); err != nil {
		return false, nil, false, err
	}
	return true, nil, false, nil
}

func (e *Engine) updateComment(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change, server *store.Comment) (bool, *ConflictSummary, bool, error) {
	incomingClock := fieldClock(ch.Data, "vectorClock")
	verdict, _ := DetectConflict(incomingClock, server.VectorClock)

	switch verdict {
	case VerdictReject:
		return false, nil, false, nil

	case VerdictNoop:
		server.LastModifiedBy = &userID
		server.LastModifiedDevice = &deviceID
		if err := e.store.UpdateComment(ctx, tx, server); err != nil {
			return false, nil, false, err
		}
		return true, nil, false, nil

	case VerdictAccept:
		applyCommentFields(server, ch.Data)
		server.VectorClock = incomingClock
		server.Version++
		server.IsEdited = true
		server.LastModifiedBy = &userID
		server.LastModifiedDevice = &deviceID
		server.UpdatedAt = time.Now()
		if err := e.store.UpdateComment(ctx, tx, server); err != nil {
			return false, nil, false, err
		}
		return true, nil, false, nil

	default: // VerdictResolve
		incoming := *server
		incoming.VectorClock = incomingClock
		applyCommentFields(&incoming, ch.Data)

		resolution := ResolveComment(&incoming, server)
		localPayload := commentToMap(&incoming)
		serverPayload := commentToMap(server)

		if resolution.Merged != nil {
			resolution.Merged.LastModifiedBy = &userID
			resolution.Merged.LastModifiedDevice = &deviceID
			resolution.Merged.IsEdited = true
			resolution.Merged.UpdatedAt = time.Now()
			if err := e.store.UpdateComment(ctx, tx, resolution.Merged); err != nil {
				return false, nil, false, err
			}
			strategy := store.ResolutionAutoResolved
			conflict := &store.Conflict{
				ID: newID(), OrganizationID: orgID, EntityType: store.EntityComment, EntityID: server.ID,
				DeviceID: &deviceID, UserID: &userID, LocalVersion: localPayload, ServerVersion: serverPayload,
				LocalVectorClock: incoming.VectorClock, ServerVectorClock: server.VectorClock,
				Reason: "Concurrent modification detected; auto-resolved.", Strategy: &strategy,
				ResolvedPayload: commentToMap(resolution.Merged), CreatedAt: time.Now(), ResolvedAt: ptrTime(time.Now()),
			}
			if err := e.store.InsertConflict(ctx, tx, conflict); err != nil {
				return false, nil, false, err
			}
			return true, nil, true, nil
		}

		reason := unresolvableReason(resolution.Unresolvable)
		conflict := &store.Conflict{
			ID: newID(), OrganizationID: orgID, EntityType: store.EntityComment, EntityID: server.ID,
			DeviceID: &deviceID, UserID: &userID, LocalVersion: localPayload, ServerVersion: serverPayload,
			LocalVectorClock: incoming.VectorClock, ServerVectorClock: server.VectorClock,
			Reason: reason, CreatedAt: time.Now(),
		}
		if err := e.store.InsertConflict(ctx, tx, conflict); err != nil {
			return false, nil, false, err
		}
		return false, &ConflictSummary{
			EntityType: string(store.EntityComment), EntityID: server.ID, ConflictReason: reason,
			ServerVersion: server.Version, ServerVectorClock: server.VectorClock,
		}, false, nil
	}
}

func (e *Engine) deleteComment(ctx context.Context, tx *store.ImmediateTx, orgID, userID, deviceID string, ch Change, server *store.Comment) (bool, *ConflictSummary, bool, error) {
	incomingClock := fieldClock(ch.Data, "vectorClock")
	newClock := clock.Merge(server.VectorClock, incomingClock)
	newClockRaw, err := marshalClockString(newClock)
	if err != nil {
		return false, nil, false, err
	}

	now := time.Now()
	if err := e.store.SoftDeleteComment(ctx, tx, ch.ID, now, &deviceID, newClockRaw); err != nil {
		return false, nil, false, err
	}

	if err := e.store.InsertTombstone(ctx, tx, &store.Tombstone{
		ID: newID(), OrganizationID: orgID, EntityType: store.EntityComment, EntityID: ch.ID,
		DeletedBy: &userID, DeletedFromDevice: &deviceID, VectorClock: newClock,
		EntitySnapshot: commentToMap(server), CreatedAt: now, ExpiresAt: now.Add(e.tombstoneRetention),
	}); err != nil {
		return false, nil, false, err
	}

	return true, nil, false, nil
}

func (e *Engine) recordTaskHistory(ctx context.Context, tx *store.ImmediateTx, t *store.Task, userID string, deviceID *string, changeType store.ChangeType, previousState map[string]any) error {
	if previousState == nil {
		previousState = map[string]any{}
	}
	return e.store.AppendTaskHistory(ctx, tx, &store.TaskHistory{
		ID: newID(), TaskID: t.ID, UserID: &userID, DeviceID: deviceID, ChangeType: changeType,
		Changes: taskToMap(t), PreviousState: previousState, VectorClock: t.VectorClock, CreatedAt: time.Now(),
	})
}

func unresolvableReason(fields []string) string {
	reason := "Concurrent modification detected. Unresolvable fields: "
	for i, f := range fields {
		if i > 0 {
			reason += ", "
		}
		reason += f
	}
	return reason
}

func ptrTime(t time.Time) *time.Time { return &t }

func marshalClockString(c clock.Clock) (string, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
