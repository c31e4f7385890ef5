package store

import (
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
)

// TaskStatus enumerates the permitted task lifecycle states, ranked in the
// order the auto-resolver uses to pick a winner between concurrent updates.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

var statusRank = map[TaskStatus]int{
	StatusTodo:       0,
	StatusInProgress: 1,
	StatusBlocked:    2,
	StatusDone:       3,
	StatusCancelled:  4,
}

// StatusRank returns the auto-resolution precedence of a status value. An
// unrecognized status ranks lowest.
func StatusRank(s TaskStatus) int {
	return statusRank[s]
}

// TaskPriority enumerates the permitted task priority levels, ranked in the
// order the auto-resolver uses to pick a winner.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

var priorityRank = map[TaskPriority]int{
	PriorityLow:    0,
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// PriorityRank returns the auto-resolution precedence of a priority value.
func PriorityRank(p TaskPriority) int {
	return priorityRank[p]
}

// Organization is the tenant boundary: every other entity is scoped to
// exactly one organization.
type Organization struct {
	ID             string
	Slug           string
	Settings       map[string]any
	StorageQuotaMB int64
	StorageUsedMB  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Role enumerates the permitted user roles within an organization.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// User belongs to exactly one organization.
type User struct {
	ID             string
	OrganizationID string
	Email          string
	Role           Role
	LastSeenAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Device belongs to exactly one user and carries the device-local vector
// clock the sync protocol merges against on every push.
type Device struct {
	ID                string
	UserID            string
	DeviceFingerprint string
	VectorClock       clock.Clock
	LastSyncAt        *time.Time
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Project groups tasks within an organization. Sync-irrelevant beyond being
// a foreign key target on Task.
type Project struct {
	ID             string
	OrganizationID string
	Name           string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Task is the primary sync-managed entity.
type Task struct {
	ID                 string
	OrganizationID     string
	ProjectID          *string
	Title              string
	Description        string
	Status             TaskStatus
	Priority           TaskPriority
	DueDate            *time.Time
	CompletedAt        *time.Time
	Position           string
	Tags               []string
	CustomFields       map[string]any
	AssignedTo         *string
	Version            int64
	VectorClock        clock.Clock
	LastModifiedBy     *string
	LastModifiedDevice *string
	Checksum           string
	CreatedBy          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
	DeletedFromDevice  *string
}

// IsDeleted reports whether the task is soft-deleted.
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// Comment threads under exactly one task.
type Comment struct {
	ID                 string
	TaskID             string
	ParentID           *string
	AuthorID           *string
	Content            string
	IsEdited           bool
	Version            int64
	VectorClock        clock.Clock
	LastModifiedBy     *string
	LastModifiedDevice *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
	DeletedFromDevice  *string
}

// IsDeleted reports whether the comment is soft-deleted.
func (c *Comment) IsDeleted() bool {
	return c.DeletedAt != nil
}

// EntityType enumerates the kinds of entity a Tombstone or Conflict may
// refer to.
type EntityType string

const (
	EntityTask       EntityType = "task"
	EntityComment    EntityType = "comment"
	EntityAttachment EntityType = "attachment"
)

// Tombstone records a deletion for propagation to devices that have not yet
// pulled it. Retained for a bounded window (90 days by default).
type Tombstone struct {
	ID                string
	OrganizationID    string
	EntityType        EntityType
	EntityID          string
	DeletedBy         *string
	DeletedFromDevice *string
	VectorClock       clock.Clock
	EntitySnapshot    map[string]any
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

// ResolutionStrategy enumerates how a Conflict was or will be resolved.
type ResolutionStrategy string

const (
	ResolutionManual       ResolutionStrategy = "manual"
	ResolutionAutoMerge    ResolutionStrategy = "auto_merge"
	ResolutionLocalWins    ResolutionStrategy = "local_wins"
	ResolutionServerWins   ResolutionStrategy = "server_wins"
	ResolutionAutoResolved ResolutionStrategy = "auto_resolved"
)

// Conflict records a concurrent-modification decision point: either an
// auto-resolved merge kept for audit, or an unresolved record surfaced to
// the client for manual resolution.
type Conflict struct {
	ID                string
	OrganizationID    string
	EntityType        EntityType
	EntityID          string
	DeviceID          *string
	UserID            *string
	LocalVersion      map[string]any
	ServerVersion     map[string]any
	LocalVectorClock  clock.Clock
	ServerVectorClock clock.Clock
	Reason            string
	Strategy          *ResolutionStrategy
	ResolvedPayload   map[string]any
	ResolvedBy        *string
	CreatedAt         time.Time
	ResolvedAt        *time.Time
}

// IsResolved reports whether the conflict has been resolved.
func (c *Conflict) IsResolved() bool {
	return c.ResolvedAt != nil
}

// SyncType enumerates the kinds of sync operation a SyncLog records.
type SyncType string

const (
	SyncTypePush     SyncType = "push"
	SyncTypePull     SyncType = "pull"
	SyncTypeConflict SyncType = "conflict"
)

// SyncStatus enumerates the terminal states of a SyncLog.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncLog is a per-request audit row capturing counters, status, and
// duration for one push, pull, or conflict-resolution request.
type SyncLog struct {
	ID                string
	DeviceID          *string
	UserID            *string
	Type              SyncType
	PushedCount       int
	PulledCount       int
	ConflictsDetected int
	ConflictsResolved int
	DurationMS        *int64
	Status            SyncStatus
	Error             *string
	Metadata          map[string]any
	CreatedAt         time.Time
	CompletedAt       *time.Time
}

// ChangeType enumerates the kinds of change a TaskHistory row records.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeUpdated  ChangeType = "updated"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRestored ChangeType = "restored"
)

// TaskHistory is an append-only audit trail entry, written on every
// accepted state change to a task.
type TaskHistory struct {
	ID             string
	TaskID         string
	UserID         *string
	DeviceID       *string
	ChangeType     ChangeType
	Changes        map[string]any
	PreviousState  map[string]any
	VectorClock    clock.Clock
	CreatedAt      time.Time
}

// ErrNotFound is returned when a lookup crosses organization boundaries or
// the row simply does not exist. The distinction matters: per the entity
// store's isolation guarantee, a cross-org lookup is invisible, not a
// permission error, so both cases share this sentinel.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
