package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalTaskContent is the stable, key-ordered projection of a task's
// content fields used both for checksums and for conflict-row snapshots.
// Field order is fixed by the struct tag order encoding/json uses, and tags
// are pre-sorted so the JSON text itself is deterministic.
type canonicalTaskContent struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       TaskStatus     `json:"status"`
	Priority     TaskPriority   `json:"priority"`
	DueDate      *string        `json:"due_date"`
	AssignedTo   *string        `json:"assigned_to"`
	Tags         []string       `json:"tags"`
	CustomFields map[string]any `json:"custom_fields"`
}

// Checksum recomputes the SHA-256 hex digest over the task's canonical
// content projection: title, description, status, priority, due date
// (ISO-8601 or null), assigned_to (id or null), tags (sorted), and
// custom_fields. Two tasks with identical content, regardless of how they
// arrived at it, hash identically.
func (t *Task) Checksum() (string, error) {
	tags := append([]string(nil), t.Tags...)
	sort.Strings(tags)

	var dueDate *string
	if t.DueDate != nil {
		s := t.DueDate.UTC().Format("2006-01-02T15:04:05.000Z")
		dueDate = &s
	}

	content := canonicalTaskContent{
		Title:        t.Title,
		Description:  t.Description,
		Status:       t.Status,
		Priority:     t.Priority,
		DueDate:      dueDate,
		AssignedTo:   t.AssignedTo,
		Tags:         tags,
		CustomFields: t.CustomFields,
	}

	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// RecomputeChecksum sets t.Checksum from the task's current content fields.
func (t *Task) RecomputeChecksum() error {
	sum, err := t.Checksum()
	if err != nil {
		return err
	}
	t.Checksum = sum
	return nil
}
