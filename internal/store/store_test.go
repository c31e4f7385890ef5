package store

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskmaster/syncserver/internal/clock"
)

// testLogger returns a debug-level logger that writes to t.Log, so all
// activity appears in CI output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", testLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

// seedOrg inserts an organization, user, and device, returning their ids.
func seedOrg(t *testing.T, s *Store) (orgID, userID, deviceID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	orgID = uuid.NewString()
	userID = uuid.NewString()
	deviceID = uuid.NewString()

	require.NoError(t, s.InsertOrganization(ctx, &Organization{
		ID: orgID, Slug: "acme-" + orgID[:8], CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertUser(ctx, &User{
		ID: userID, OrganizationID: orgID, Email: "a@example.com", Role: RoleMember,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertDevice(ctx, &Device{
		ID: deviceID, UserID: userID, DeviceFingerprint: "fp", VectorClock: clock.New(),
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}))
	return orgID, userID, deviceID
}

func newTestTask(orgID, deviceID string) *Task {
	now := time.Now()
	t := &Task{
		ID:                 uuid.NewString(),
		OrganizationID:     orgID,
		Title:              "Write report",
		Description:        "quarterly",
		Status:             StatusTodo,
		Priority:           PriorityMedium,
		Position:           "1",
		Tags:               []string{"urgent", "finance"},
		CustomFields:       map[string]any{},
		Version:            1,
		VectorClock:        clock.Clock{deviceID: 1},
		LastModifiedDevice: &deviceID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	_ = t.RecomputeChecksum()
	return t
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := newTestStore(t)
	_, err := s.db.Exec(`SELECT count(*) FROM tasks`)
	require.NoError(t, err)
}

func TestInsertAndGetTask_LiveAndAny(t *testing.T) {
	s := newTestStore(t)
	orgID, _, deviceID := seedOrg(t, s)
	task := newTestTask(orgID, deviceID)

	tx, err := s.BeginImmediate(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.InsertTask(context.Background(), tx, task))
	require.NoError(t, tx.Commit(context.Background()))

	got, err := s.GetTaskLive(context.Background(), orgID, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.Title, got.Title)
	require.Equal(t, []string{"urgent", "finance"}, got.Tags)

	// Soft-delete, then confirm live() hides it but any() still finds it.
	tx2, err := s.BeginImmediate(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.SoftDeleteTask(context.Background(), tx2, orgID, task.ID, time.Now(), &deviceID, "{}"))
	require.NoError(t, tx2.Commit(context.Background()))

	_, err = s.GetTaskLive(context.Background(), orgID, task.ID)
	require.ErrorIs(t, err, ErrNotFound)

	stillThere, err := s.GetTaskAny(context.Background(), orgID, task.ID)
	require.NoError(t, err)
	require.True(t, stillThere.IsDeleted())
}

func TestGetTask_CrossOrgIsNotFound(t *testing.T) {
	s := newTestStore(t)
	orgID, _, deviceID := seedOrg(t, s)
	task := newTestTask(orgID, deviceID)

	tx, err := s.BeginImmediate(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.InsertTask(context.Background(), tx, task))
	require.NoError(t, tx.Commit(context.Background()))

	_, err = s.GetTaskLive(context.Background(), uuid.NewString(), task.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneLifecycle(t *testing.T) {
	s := newTestStore(t)
	orgID, _, deviceID := seedOrg(t, s)
	now := time.Now()

	tx, err := s.BeginImmediate(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.InsertTombstone(context.Background(), tx, &Tombstone{
		ID: uuid.NewString(), OrganizationID: orgID, EntityType: EntityTask,
		EntityID: uuid.NewString(), DeletedFromDevice: &deviceID,
		VectorClock: clock.Clock{deviceID: 1}, EntitySnapshot: map[string]any{"title": "x"},
		CreatedAt: now, ExpiresAt: now.Add(90 * 24 * time.Hour),
	}))
	require.NoError(t, tx.Commit(context.Background()))

	listed, err := s.ListTombstonesSince(context.Background(), orgID, now.Add(-time.Minute), now, "other-device", 100)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	// Own-device tombstones are excluded by the caller.
	listedOwn, err := s.ListTombstonesSince(context.Background(), orgID, now.Add(-time.Minute), now, deviceID, 100)
	require.NoError(t, err)
	require.Empty(t, listedOwn)

	n, err := s.SweepExpired(context.Background(), now.Add(91*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestChecksum_StableAcrossTagOrder(t *testing.T) {
	base := newTestTask(uuid.NewString(), uuid.NewString())
	reordered := *base
	reordered.Tags = []string{"finance", "urgent"}

	sum1, err := base.Checksum()
	require.NoError(t, err)
	sum2, err := reordered.Checksum()
	require.NoError(t, err)
	require.Equal(t, sum1, sum2)
}

func TestChecksum_ChangesWithContent(t *testing.T) {
	base := newTestTask(uuid.NewString(), uuid.NewString())
	changed := *base
	changed.Title = "Different title"

	sum1, err := base.Checksum()
	require.NoError(t, err)
	sum2, err := changed.Checksum()
	require.NoError(t, err)
	require.NotEqual(t, sum1, sum2)
}
