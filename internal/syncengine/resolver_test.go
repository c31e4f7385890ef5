package syncengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

func baseTask() *store.Task {
	return &store.Task{
		ID:           "task-1",
		Title:        "Write report",
		Description:  "quarterly",
		Status:       store.StatusTodo,
		Priority:     store.PriorityMedium,
		Position:     "1",
		Tags:         []string{"finance"},
		CustomFields: map[string]any{"estimate": float64(3)},
		Version:      5,
		VectorClock:  clock.Clock{"S": 5},
	}
}

func TestResolveTask_AllFieldsAgree(t *testing.T) {
	server := baseTask()
	incoming := *server
	incoming.VectorClock = clock.Clock{"D": 3}
	incoming.Version = 1

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	require.NotNil(t, res.Merged)
	assert.Equal(t, clock.Clock{"S": 5, "D": 3}, res.Merged.VectorClock)
	assert.Equal(t, int64(6), res.Merged.Version)
}

func TestResolveTask_StatusPicksHigherRank(t *testing.T) {
	server := baseTask()
	incoming := *server
	incoming.Status = store.StatusInProgress
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, store.StatusInProgress, res.Merged.Status)
}

func TestResolveTask_UnresolvableTitle(t *testing.T) {
	server := baseTask()
	incoming := *server
	incoming.Title = "Write a different report"
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Nil(t, res.Merged)
	assert.Equal(t, []string{"title"}, res.Unresolvable)
}

func TestResolveTask_TagsUnionSorted(t *testing.T) {
	server := baseTask()
	server.Tags = []string{"finance", "urgent"}
	incoming := *server
	incoming.Tags = []string{"urgent", "q3"}
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, []string{"finance", "q3", "urgent"}, res.Merged.Tags)
}

func TestResolveTask_CustomFieldsKeywiseMerge(t *testing.T) {
	server := baseTask()
	server.CustomFields = map[string]any{"estimate": float64(3), "client": "acme"}
	incoming := *server
	incoming.CustomFields = map[string]any{"estimate": float64(3), "region": "us"}
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, map[string]any{"estimate": float64(3), "client": "acme", "region": "us"}, res.Merged.CustomFields)
}

func TestResolveTask_CustomFieldsDisagreementIsUnresolvable(t *testing.T) {
	server := baseTask()
	server.CustomFields = map[string]any{"estimate": float64(3)}
	incoming := *server
	incoming.CustomFields = map[string]any{"estimate": float64(8)}
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Nil(t, res.Merged)
	assert.Contains(t, res.Unresolvable, "custom_fields")
}

func TestResolveTask_PositionServerWins(t *testing.T) {
	server := baseTask()
	server.Position = "5"
	incoming := *server
	incoming.Position = "9"
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, "5", res.Merged.Position)
}

func TestResolveTask_DueDateEarlierWins(t *testing.T) {
	server := baseTask()
	later := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	earlier := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	server.DueDate = &later
	incoming := *server
	incoming.DueDate = &earlier
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, earlier, *res.Merged.DueDate)
}

func TestResolveTask_NullDueDateLosesToConcreteDate(t *testing.T) {
	server := baseTask()
	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	server.DueDate = &due
	incoming := *server
	incoming.DueDate = nil
	incoming.VectorClock = clock.Clock{"D": 3}

	res := ResolveTask(&incoming, server)

	require.Empty(t, res.Unresolvable)
	require.NotNil(t, res.Merged.DueDate)
	assert.Equal(t, due, *res.Merged.DueDate)
}

func TestResolveComment_EqualContentResolves(t *testing.T) {
	server := &store.Comment{ID: "c1", Content: "lgtm", Version: 2, VectorClock: clock.Clock{"S": 2}}
	incoming := &store.Comment{ID: "c1", Content: "lgtm", Version: 1, VectorClock: clock.Clock{"D": 1}}

	res := ResolveComment(incoming, server)

	require.Empty(t, res.Unresolvable)
	assert.Equal(t, clock.Clock{"S": 2, "D": 1}, res.Merged.VectorClock)
}

func TestResolveComment_UnequalContentIsUnresolvable(t *testing.T) {
	server := &store.Comment{ID: "c1", Content: "lgtm", VectorClock: clock.Clock{"S": 2}}
	incoming := &store.Comment{ID: "c1", Content: "needs work", VectorClock: clock.Clock{"D": 1}}

	res := ResolveComment(incoming, server)

	require.Nil(t, res.Merged)
	assert.Equal(t, []string{"content"}, res.Unresolvable)
}
