package syncengine

import (
	"encoding/json"
	"time"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

// decodeClockJSON parses a stored vector-clock JSON column, coercing any
// malformed value to an empty clock.
func decodeClockJSON(raw string) clock.Clock {
	var c clock.Clock
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return clock.New()
	}
	return c
}

// Unknown fields in a Change payload are ignored on update, falling back to
// the stored value (spec.md §9 design note on dynamic JSON payloads).

func fieldString(data map[string]any, key, fallback string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return fallback
}

func fieldStringPtr(data map[string]any, key string, fallback *string) *string {
	v, present := data[key]
	if !present {
		return fallback
	}
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return &s
}

func fieldTags(data map[string]any, key string, fallback []string) []string {
	v, ok := data[key].([]any)
	if !ok {
		return fallback
	}
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func fieldMap(data map[string]any, key string, fallback map[string]any) map[string]any {
	v, ok := data[key].(map[string]any)
	if !ok {
		return fallback
	}
	return v
}

// dueDateLayouts covers the ISO-8601 string this package's own conflict and
// history snapshots use (see taskToMap), for round-tripping a due date that
// passed through one of those instead of the wire protocol.
var dueDateLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
}

// fieldTimeMSPtr decodes a due date: an epoch-millisecond number (the wire
// format every timestamp uses) or, for values round-tripped through this
// package's own ISO-8601 snapshots, a parseable string. Anything else falls
// back to the existing value.
func fieldTimeMSPtr(data map[string]any, key string, fallback *time.Time) *time.Time {
	v, present := data[key]
	if !present {
		return fallback
	}
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case string:
		for _, layout := range dueDateLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return fallback
	case float64:
		t := time.UnixMilli(int64(val)).UTC()
		return &t
	default:
		return fallback
	}
}

func fieldClock(data map[string]any, key string) clock.Clock {
	raw, ok := data[key].(map[string]any)
	if !ok {
		return clock.New()
	}
	c := clock.New()
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			c[k] = int64(n)
		}
	}
	return c
}

// applyTaskFields overlays a change payload's recognized fields onto an
// existing task, leaving everything else (including identity/attribution
// fields) untouched. Used both to build a new task and to apply an
// AFTER-overwrite or a manual resolution's payload.
func applyTaskFields(t *store.Task, data map[string]any) {
	t.Title = fieldString(data, "title", t.Title)
	t.Description = fieldString(data, "description", t.Description)
	t.Status = store.TaskStatus(fieldString(data, "status", string(t.Status)))
	t.Priority = store.TaskPriority(fieldString(data, "priority", string(t.Priority)))
	t.DueDate = fieldTimeMSPtr(data, "due_date", t.DueDate)
	t.AssignedTo = fieldStringPtr(data, "assigned_to", t.AssignedTo)
	t.Tags = fieldTags(data, "tags", t.Tags)
	t.CustomFields = fieldMap(data, "custom_fields", t.CustomFields)
	if pos, ok := data["position"].(string); ok {
		t.Position = pos
	}
	if pid, ok := data["project_id"].(string); ok {
		t.ProjectID = &pid
	}
}

func applyCommentFields(c *store.Comment, data map[string]any) {
	c.Content = fieldString(data, "content", c.Content)
	if pid, present := data["parent_id"]; present {
		if pid == nil {
			c.ParentID = nil
		} else if s, ok := pid.(string); ok {
			c.ParentID = &s
		}
	}
}

// taskToMap projects a task into the plain map[string]any snapshot stored
// in a Conflict's local_version/server_version/resolved_payload columns and
// in a TaskHistory row's changes column.
func taskToMap(t *store.Task) map[string]any {
	m := map[string]any{
		"id":            t.ID,
		"title":         t.Title,
		"description":   t.Description,
		"status":        string(t.Status),
		"priority":      string(t.Priority),
		"assigned_to":   t.AssignedTo,
		"tags":          t.Tags,
		"custom_fields": t.CustomFields,
		"position":      t.Position,
		"version":       t.Version,
		"vectorClock":   t.VectorClock,
	}
	if t.ProjectID != nil {
		m["project_id"] = *t.ProjectID
	}
	if t.DueDate != nil {
		m["due_date"] = t.DueDate.UTC().Format("2006-01-02T15:04:05.000Z")
	} else {
		m["due_date"] = nil
	}
	return m
}

// commentToMap mirrors taskToMap for comments.
func commentToMap(c *store.Comment) map[string]any {
	m := map[string]any{
		"id":          c.ID,
		"task_id":     c.TaskID,
		"content":     c.Content,
		"is_edited":   c.IsEdited,
		"version":     c.Version,
		"vectorClock": c.VectorClock,
	}
	if c.ParentID != nil {
		m["parent_id"] = *c.ParentID
	} else {
		m["parent_id"] = nil
	}
	return m
}
