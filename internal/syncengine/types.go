package syncengine

import (
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
)

// Operation enumerates the kind of change a client pushes for an entity.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Change is one entity mutation within a push request: an id, the intended
// operation, and the entity payload as the client last saw it.
type Change struct {
	ID        string
	Operation Operation
	Data      map[string]any
}

// PushRequest is the decoded body of POST /api/sync/push/.
type PushRequest struct {
	DeviceID    string
	VectorClock clock.Clock
	Timestamp   time.Time
	Tasks       []Change
	Comments    []Change
}

// ConflictSummary is the shape of one entry in a push response's
// `conflicts` array (spec.md §6, literal push response shape).
type ConflictSummary struct {
	EntityType        string      `json:"entityType"`
	EntityID          string      `json:"entityId"`
	ConflictReason    string      `json:"conflictReason"`
	ServerVersion     int64       `json:"serverVersion"`
	ServerVectorClock clock.Clock `json:"serverVectorClock"`
}

// PushResult is the decoded result of a push, independent of its JSON
// wire encoding.
type PushResult struct {
	Processed         int
	Conflicts         []ConflictSummary
	ServerVectorClock clock.Clock
	Timestamp         time.Time
}

// PullResult is the decoded result of a pull.
type PullResult struct {
	Tasks             []TaskPayload
	Comments          []CommentPayload
	Tombstones        []TombstonePayload
	ServerVectorClock clock.Clock
	HasMore           bool
	Timestamp         time.Time
}

// TaskPayload, CommentPayload, and TombstonePayload are the wire
// projections of the corresponding store rows, assembled by Pull.
// Declared here so syncengine.Pull can return them directly
// without httpapi reaching back into internal/store's internal scan
// helpers.
type TaskPayload = map[string]any
type CommentPayload = map[string]any
type TombstonePayload = map[string]any
