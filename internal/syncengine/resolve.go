package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

// ResolutionChoice enumerates how a client asks the server to resolve an
// unresolved conflict (spec.md §4.6's manual-resolution endpoint).
type ResolutionChoice string

const (
	ChoiceLocal  ResolutionChoice = "local"
	ChoiceRemote ResolutionChoice = "remote"
	ChoiceCustom ResolutionChoice = "custom"
)

// taskProtectedFields and commentProtectedFields name the identity and
// attribution fields a manual resolution payload may never override,
// regardless of choice.
var taskProtectedFields = map[string]struct{}{
	"id": {}, "organization_id": {}, "created_by": {}, "created_at": {},
}

var commentProtectedFields = map[string]struct{}{
	"id": {}, "task_id": {}, "created_at": {},
}

// ErrAlreadyResolved is returned when a conflict has already been resolved.
var ErrAlreadyResolved = errors.New("syncengine: conflict already resolved")

// ResolveManually applies a client's explicit choice (local, remote, or a
// custom merged payload) to an unresolved conflict: local replays the
// client's submitted version, remote keeps the server's version as-is, and
// custom applies caller-supplied field values over the server row. All
// three bump version and merge the conflict's two vector clocks.
func (e *Engine) ResolveManually(ctx context.Context, orgID, userID, conflictID string, choice ResolutionChoice, custom map[string]any) (*store.Conflict, error) {
	conflict, err := e.store.GetConflict(ctx, orgID, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.IsResolved() {
		return nil, ErrAlreadyResolved
	}

	mergedClock := clock.Merge(conflict.LocalVectorClock, conflict.ServerVectorClock)

	var resolvedPayload map[string]any
	switch conflict.EntityType {
	case store.EntityTask:
		resolvedPayload, err = e.resolveTaskManually(ctx, orgID, userID, conflict, choice, custom, mergedClock)
	case store.EntityComment:
		resolvedPayload, err = e.resolveCommentManually(ctx, orgID, userID, conflict, choice, custom, mergedClock)
	default:
		return nil, fmt.Errorf("syncengine: manual resolution unsupported for entity type %q", conflict.EntityType)
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	strategy := resolutionStrategyFor(choice)
	if err := e.store.ResolveConflict(ctx, conflictID, strategy, resolvedPayload, userID, now); err != nil {
		return nil, fmt.Errorf("syncengine: resolve conflict: %w", err)
	}

	return e.store.GetConflict(ctx, orgID, conflictID)
}

func (e *Engine) resolveTaskManually(ctx context.Context, orgID, userID string, conflict *store.Conflict, choice ResolutionChoice, custom map[string]any, mergedClock clock.Clock) (map[string]any, error) {
	server, err := e.store.GetTaskAny(ctx, orgID, conflict.EntityID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: resolve task: %w", err)
	}

	switch choice {
	case ChoiceRemote:
		// server row already reflects "remote"; only clock/version advance.
	case ChoiceLocal:
		applyTaskFields(server, conflict.LocalVersion)
	case ChoiceCustom:
		applyProtectedFields(custom, taskProtectedFields)
		applyTaskFields(server, custom)
	default:
		return nil, fmt.Errorf("syncengine: unknown resolution choice %q", choice)
	}

	server.VectorClock = mergedClock
	server.Version++
	server.LastModifiedBy = &userID
	server.UpdatedAt = time.Now()
	if err := server.RecomputeChecksum(); err != nil {
		return nil, err
	}

	tx, err := e.store.BeginImmediate(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateTask(ctx, tx, server); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := e.recordTaskHistory(ctx, tx, server, userID, nil, store.ChangeUpdated, nil); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncengine: resolve task: commit: %w", err)
	}

	return taskToMap(server), nil
}

func (e *Engine) resolveCommentManually(ctx context.Context, orgID, userID string, conflict *store.Conflict, choice ResolutionChoice, custom map[string]any, mergedClock clock.Clock) (map[string]any, error) {
	server, err := e.store.GetCommentAny(ctx, orgID, conflict.EntityID)
	if err != nil {
		return nil, fmt.Errorf("syncengine: resolve comment: %w", err)
	}

	switch choice {
	case ChoiceRemote:
	case ChoiceLocal:
		applyCommentFields(server, conflict.LocalVersion)
	case ChoiceCustom:
		applyProtectedFields(custom, commentProtectedFields)
		applyCommentFields(server, custom)
	default:
		return nil, fmt.Errorf("syncengine: unknown resolution choice %q", choice)
	}

	server.VectorClock = mergedClock
	server.Version++
	server.IsEdited = true
	server.LastModifiedBy = &userID
	server.UpdatedAt = time.Now()

	tx, err := e.store.BeginImmediate(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateComment(ctx, tx, server); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("syncengine: resolve comment: commit: %w", err)
	}

	return commentToMap(server), nil
}

// applyProtectedFields strips any key a manual resolution is not allowed to
// override before it is applied as an overlay.
func applyProtectedFields(data map[string]any, protected map[string]struct{}) {
	for k := range protected {
		delete(data, k)
	}
}

func resolutionStrategyFor(choice ResolutionChoice) store.ResolutionStrategy {
	switch choice {
	case ChoiceLocal:
		return store.ResolutionLocalWins
	case ChoiceRemote:
		return store.ResolutionServerWins
	default:
		return store.ResolutionManual
	}
}
