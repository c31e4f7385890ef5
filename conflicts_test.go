package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/clock"
	"github.com/taskmaster/syncserver/internal/serverconfig"
	"github.com/taskmaster/syncserver/internal/store"
)

func newConflictsTestContext(t *testing.T) (context.Context, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "taskserver.db")
	ctx := context.Background()
	logger := buildLogger(nil, CLIFlags{})

	st, err := store.Open(ctx, dbPath, logger)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cfg := serverconfig.DefaultConfig()
	cfg.Database.Path = dbPath
	cc := &CLIContext{Cfg: cfg, Logger: logger}

	return context.WithValue(ctx, cliContextKey{}, cc), dbPath
}

func TestRunConflictsList_EmptyStoreReturnsNoError(t *testing.T) {
	ctx, _ := newConflictsTestContext(t)
	conflictsOrgID = uuid.NewString()

	cmd := newConflictsListCmd()
	cmd.SetContext(ctx)

	require.NoError(t, runConflictsList(cmd, nil))
}

func TestRunConflictsList_ReturnsSeededConflict(t *testing.T) {
	ctx, dbPath := newConflictsTestContext(t)

	logger := buildLogger(nil, CLIFlags{})
	st, err := store.Open(ctx, dbPath, logger)
	require.NoError(t, err)

	orgID := uuid.NewString()
	now := time.Now()
	require.NoError(t, st.InsertOrganization(ctx, &store.Organization{ID: orgID, Slug: "acme", CreatedAt: now, UpdatedAt: now}))

	tx, err := st.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, st.InsertConflict(ctx, tx, &store.Conflict{
		ID: uuid.NewString(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: uuid.NewString(),
		LocalVersion: map[string]any{"title": "a"}, ServerVersion: map[string]any{"title": "b"},
		LocalVectorClock: clock.New(), ServerVectorClock: clock.New(),
		Reason: "concurrent edit to unmergeable field", CreatedAt: now,
	}))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, st.Close())

	conflictsOrgID = orgID
	cmd := newConflictsListCmd()
	cmd.SetContext(ctx)

	require.NoError(t, runConflictsList(cmd, nil))
}

func TestRunConflictsResolve_InvalidChoiceErrors(t *testing.T) {
	ctx, _ := newConflictsTestContext(t)
	conflictsOrgID = uuid.NewString()
	resolveChoice = "bogus"
	resolveOperatorID = uuid.NewString()

	cmd := newConflictsResolveCmd()
	cmd.SetContext(ctx)

	err := runConflictsResolve(cmd, []string{uuid.NewString()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--choice must be")
}

func TestRunConflictsResolve_CustomWithoutPayloadErrors(t *testing.T) {
	ctx, _ := newConflictsTestContext(t)
	conflictsOrgID = uuid.NewString()
	resolveChoice = "custom"
	resolveCustomJSON = ""
	resolveOperatorID = uuid.NewString()

	cmd := newConflictsResolveCmd()
	cmd.SetContext(ctx)

	err := runConflictsResolve(cmd, []string{uuid.NewString()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--custom is required")
}
