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

func TestRunSweepTombstones_RemovesExpiredRows(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "taskserver.db")

	ctx := context.Background()
	logger := buildLogger(nil, CLIFlags{})

	st, err := store.Open(ctx, dbPath, logger)
	require.NoError(t, err)

	orgID := uuid.NewString()
	now := time.Now()
	require.NoError(t, st.InsertOrganization(ctx, &store.Organization{ID: orgID, Slug: "acme", CreatedAt: now, UpdatedAt: now}))

	tx, err := st.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, st.InsertTombstone(ctx, tx, &store.Tombstone{
		ID: uuid.NewString(), OrganizationID: orgID, EntityType: store.EntityTask, EntityID: uuid.NewString(),
		VectorClock: clock.New(), EntitySnapshot: map[string]any{}, CreatedAt: now.Add(-100 * 24 * time.Hour),
		ExpiresAt: now.Add(-10 * 24 * time.Hour),
	}))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, st.Close())

	cfg := serverconfig.DefaultConfig()
	cfg.Database.Path = dbPath
	cc := &CLIContext{Cfg: cfg, Logger: logger}
	cmdCtx := context.WithValue(ctx, cliContextKey{}, cc)

	cmd := newSweepTombstonesCmd()
	cmd.SetContext(cmdCtx)

	require.NoError(t, runSweepTombstones(cmd, nil))

	st2, err := store.Open(ctx, dbPath, logger)
	require.NoError(t, err)
	defer st2.Close()

	remaining, err := st2.ListTombstonesSince(ctx, orgID, now.Add(-200*24*time.Hour), now, "no-such-device", 100)
	require.NoError(t, err)
	require.Empty(t, remaining)
}
