package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/store"
)

func TestLogMetricsPeriodically_LogsAverageSyncDuration(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "taskserver.db")

	ctx := context.Background()
	logger := buildLogger(nil, CLIFlags{})

	st, err := store.Open(ctx, dbPath, logger)
	require.NoError(t, err)
	defer st.Close()

	tx, err := st.BeginImmediate(ctx)
	require.NoError(t, err)
	startedAt := time.Now().Add(-time.Minute)
	require.NoError(t, st.OpenSyncLog(ctx, tx, "log-1", nil, nil, store.SyncTypePush, startedAt))
	require.NoError(t, tx.Commit(ctx))

	tx2, err := st.BeginImmediate(ctx)
	require.NoError(t, err)
	require.NoError(t, st.CloseSyncLog(ctx, tx2, "log-1", store.SyncLogCounters{}, store.SyncStatusSuccess, nil, nil, time.Now(), startedAt))
	require.NoError(t, tx2.Commit(ctx))

	var buf bytes.Buffer
	testLogger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		logMetricsPeriodically(runCtx, st, testLogger, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "avg_sync_duration_ms")
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
