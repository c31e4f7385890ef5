package httpapi

import (
	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/syncengine"
)

// pushChangeWire is one entry of a push request's tasks/comments array, the
// wire shape of syncengine.Change (spec.md §4.5).
type pushChangeWire struct {
	ID        string               `json:"id"`
	Operation syncengine.Operation `json:"operation"`
	Data      map[string]any       `json:"data"`
}

// pushChangesWire groups the two entity-type arrays a push request carries.
type pushChangesWire struct {
	Tasks    []pushChangeWire `json:"tasks"`
	Comments []pushChangeWire `json:"comments"`
}

// pushRequestWire is the decoded body of POST /api/sync/push/.
type pushRequestWire struct {
	DeviceID    string          `json:"deviceId"`
	VectorClock clock.Clock     `json:"vectorClock"`
	Timestamp   int64           `json:"timestamp"`
	Changes     pushChangesWire `json:"changes"`
}

// pushResponseWire is the literal push response shape (spec.md §6).
type pushResponseWire struct {
	Success           bool                         `json:"success"`
	Processed         int                          `json:"processed"`
	Conflicts         []syncengine.ConflictSummary `json:"conflicts"`
	ServerVectorClock clock.Clock                  `json:"serverVectorClock"`
	Timestamp         int64                        `json:"timestamp"`
}

// pullResponseWire is the literal pull response shape (spec.md §6).
type pullResponseWire struct {
	Tasks             []syncengine.TaskPayload      `json:"tasks"`
	Comments          []syncengine.CommentPayload   `json:"comments"`
	Tombstones        []syncengine.TombstonePayload `json:"tombstones"`
	ServerVectorClock clock.Clock                   `json:"serverVectorClock"`
	HasMore           bool                          `json:"hasMore"`
	Timestamp         int64                         `json:"timestamp"`
}

// conflictsListResponseWire wraps the unresolved-conflicts listing.
type conflictsListResponseWire struct {
	Conflicts []conflictWire `json:"conflicts"`
}

// conflictWire is one row of a conflicts listing or resolve response.
type conflictWire struct {
	ID                string         `json:"id"`
	EntityType        string         `json:"entityType"`
	EntityID          string         `json:"entityId"`
	LocalVersion      map[string]any `json:"localVersion"`
	ServerVersion     map[string]any `json:"serverVersion"`
	LocalVectorClock  clock.Clock    `json:"localVectorClock"`
	ServerVectorClock clock.Clock    `json:"serverVectorClock"`
	Reason            string         `json:"reason"`
	Strategy          *string        `json:"strategy,omitempty"`
	ResolvedPayload   map[string]any `json:"resolvedPayload,omitempty"`
	CreatedAt         int64          `json:"createdAt"`
	ResolvedAt        *int64         `json:"resolvedAt,omitempty"`
}

// resolveRequestWire is the decoded body of
// POST /api/sync/conflicts/{id}/resolve/.
type resolveRequestWire struct {
	Resolution       string         `json:"resolution"`
	CustomResolution map[string]any `json:"customResolution,omitempty"`
}

// loginRequestWire is the decoded body of POST /api/auth/login/. Credential
// verification is an external collaborator (spec.md §1 Non-goals); this
// type only carries what the stub issuer in auth.go needs to mint a token
// for a caller it is told to trust.
type loginRequestWire struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
}

type tokenResponseWire struct {
	Token string `json:"token"`
}

type refreshRequestWire struct {
	Token string `json:"token"`
}

// errorResponseWire is the literal error body shape (spec.md §6: "500 on
// unexpected error with {error, code, timestamp, requestId} body"), reused
// for every non-2xx status this package returns.
type errorResponseWire struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
	RequestID string `json:"requestId,omitempty"`
}
