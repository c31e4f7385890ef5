package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/serverconfig"
)

func TestRunMigrate_OpensAndClosesCleanly(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := serverconfig.DefaultConfig()
	cfg.Database.Path = filepath.Join(tmpDir, "taskserver.db")

	cc := &CLIContext{Cfg: cfg, Logger: buildLogger(cfg, CLIFlags{})}
	ctx := context.WithValue(context.Background(), cliContextKey{}, cc)

	cmd := newMigrateCmd()
	cmd.SetContext(ctx)

	err := runMigrate(cmd, nil)
	require.NoError(t, err)

	_, statErr := os.Stat(cfg.Database.Path)
	assert.NoError(t, statErr, "migrate should create the database file")
}
