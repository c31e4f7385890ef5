package syncengine

import (
	"reflect"
	"sort"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

// TaskResolution is the outcome of attempting to auto-resolve two
// concurrent task versions.
type TaskResolution struct {
	Merged        *store.Task
	Unresolvable  []string // empty iff the merge fully succeeded
}

// ResolveTask applies the field-level merge policy (spec.md §4.4) to two
// concurrently modified copies of the same task, evaluated over the union
// of fields present in either payload. If every field resolves, Merged
// holds the combined result with vector_clock and version already bumped;
// otherwise Unresolvable names the fields that could not be merged and the
// server row must be left untouched.
func ResolveTask(incoming, server *store.Task) TaskResolution {
	var unresolvable []string
	merged := *server // start from server's identity fields (id, org, created_by, ...)

	if incoming.Title == server.Title {
		merged.Title = server.Title
	} else {
		unresolvable = append(unresolvable, "title")
	}

	if incoming.Description == server.Description {
		merged.Description = server.Description
	} else {
		unresolvable = append(unresolvable, "description")
	}

	merged.Status = higherRankStatus(incoming.Status, server.Status)
	merged.Priority = higherRankPriority(incoming.Priority, server.Priority)
	merged.DueDate = earlierNonNull(incoming.DueDate, server.DueDate)

	if equalStringPtr(incoming.AssignedTo, server.AssignedTo) {
		merged.AssignedTo = server.AssignedTo
	} else {
		unresolvable = append(unresolvable, "assigned_to")
	}

	merged.Tags = unionSortedTags(incoming.Tags, server.Tags)

	mergedFields, fieldConflicts := mergeCustomFields(incoming.CustomFields, server.CustomFields)
	merged.CustomFields = mergedFields
	if len(fieldConflicts) > 0 {
		unresolvable = append(unresolvable, "custom_fields")
	}

	// position: server wins (spec.md §9 design note 4 — a deliberate
	// simplification pending fractional-reindex support).
	merged.Position = server.Position

	if len(unresolvable) > 0 {
		return TaskResolution{Unresolvable: unresolvable}
	}

	merged.VectorClock = clock.Merge(incoming.VectorClock, server.VectorClock)
	merged.Version = maxInt64(incoming.Version, server.Version) + 1

	return TaskResolution{Merged: &merged}
}

// CommentResolution is the outcome of attempting to auto-resolve two
// concurrent comment versions. Only `content` is compared per spec.md §4.4.
type CommentResolution struct {
	Merged       *store.Comment
	Unresolvable []string
}

// ResolveComment applies the comment auto-resolution policy: equal content
// merges trivially; unequal content is unresolvable and must be surfaced.
func ResolveComment(incoming, server *store.Comment) CommentResolution {
	if incoming.Content != server.Content {
		return CommentResolution{Unresolvable: []string{"content"}}
	}

	merged := *server
	merged.VectorClock = clock.Merge(incoming.VectorClock, server.VectorClock)
	merged.Version = maxInt64(incoming.Version, server.Version) + 1

	return CommentResolution{Merged: &merged}
}

func higherRankStatus(a, b store.TaskStatus) store.TaskStatus {
	if store.StatusRank(a) >= store.StatusRank(b) {
		return a
	}
	return b
}

func higherRankPriority(a, b store.TaskPriority) store.TaskPriority {
	if store.PriorityRank(a) >= store.PriorityRank(b) {
		return a
	}
	return b
}

// earlierNonNull returns the closer (earlier) of two optional due dates; a
// null due date always loses to any concrete date.
func earlierNonNull(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Before(*b) {
		return a
	}
	return b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func unionSortedTags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, t := range a {
		seen[t] = struct{}{}
	}
	for _, t := range b {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// mergeCustomFields implements the key-wise merge rule: equal values kept,
// disjoint keys unioned, and per-key disagreement reported as a conflict.
func mergeCustomFields(a, b map[string]any) (map[string]any, []string) {
	merged := make(map[string]any, len(a)+len(b))
	var conflicts []string

	for k, v := range b {
		merged[k] = v
	}
	for k, av := range a {
		bv, present := merged[k]
		if !present {
			merged[k] = av
			continue
		}
		if !deepEqualJSON(av, bv) {
			conflicts = append(conflicts, k)
		}
	}

	return merged, conflicts
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// deepEqualJSON compares two decoded-JSON values (map[string]any leaves:
// string, float64, bool, nil, []any, map[string]any) for equality.
func deepEqualJSON(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
