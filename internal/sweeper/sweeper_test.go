package sweeper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/store"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(&testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRunOnce_RemovesOnlyExpiredTombstones(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	orgID := uuid.NewString()
	now := time.Now()
	require.NoError(t, st.InsertOrganization(ctx, &store.Organization{ID: orgID, Slug: "acme", CreatedAt: now, UpdatedAt: now}))

	tx, err := st.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, st.InsertTombstone(ctx, tx, &store.Tombstone{
		ID: uuid.NewString(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: uuid.NewString(),
		VectorClock: clock.New(), EntitySnapshot: map[string]any{}, CreatedAt: now.Add(-100 * 24 * time.Hour),
		ExpiresAt: now.Add(-10 * 24 * time.Hour), // already expired
	}))
	require.NoError(t, st.InsertTombstone(ctx, tx, &store.Tombstone{
		ID: uuid.NewString(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: uuid.NewString(),
		VectorClock: clock.New(), EntitySnapshot: map[string]any{}, CreatedAt: now,
		ExpiresAt: now.Add(90 * 24 * time.Hour), // not yet expired
	}))
	require.NoError(t, tx.Commit(ctx))

	s := New(st, time.Hour, testLogger(t))
	require.NoError(t, s.RunOnce(ctx))

	remaining, err := st.ListTombstonesSince(ctx, orgID, now.Add(-200*24*time.Hour), now, "no-such-device", 100)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestStartStop_CompletesWithoutDeadlock(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	s := New(st, 10*time.Millisecond, testLogger(t))
	s.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	s.Stop()
}
