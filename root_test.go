package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/syncserver/internal/serverconfig"
)

// --- buildLogger tests ---

func TestBuildLogger_Default(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_Verbose(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Verbose: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Debug(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Debug: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Quiet(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Quiet: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLogger_ConfigDebug(t *testing.T) {
	cfg := serverconfig.DefaultConfig()
	cfg.Logging.Level = "debug"

	logger := buildLogger(cfg, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_FlagsOverrideConfig(t *testing.T) {
	cfg := serverconfig.DefaultConfig()
	cfg.Logging.Level = "error"

	logger := buildLogger(cfg, CLIFlags{Verbose: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_UnknownLogLevel(t *testing.T) {
	cfg := serverconfig.DefaultConfig()
	cfg.Logging.Level = "bogus"

	logger := buildLogger(cfg, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

// --- cliContextFrom / mustCLIContext tests ---

func TestCliContextFrom_NilContext(t *testing.T) {
	ctx := context.Background()
	cc := cliContextFrom(ctx)
	assert.Nil(t, cc)
}

func TestCliContextFrom_WithCLIContext(t *testing.T) {
	expected := &CLIContext{
		Cfg:    serverconfig.DefaultConfig(),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)
	cc := cliContextFrom(ctx)
	assert.Equal(t, expected, cc)
	assert.NotNil(t, cc.Logger)
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestMustCLIContext_Returns(t *testing.T) {
	expected := &CLIContext{
		Cfg:    serverconfig.DefaultConfig(),
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)
	cc := mustCLIContext(ctx)
	assert.Equal(t, expected, cc)
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"serve", "migrate", "sweep-tombstones", "conflicts"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	expectedFlags := []string{"config", "verbose", "debug", "quiet"}
	for _, name := range expectedFlags {
		flag := cmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(flags, "migrate"))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestNewRootCmd_ConflictsSubcommands(t *testing.T) {
	cmd := newRootCmd()

	conflictsSub, _, err := cmd.Find([]string{"conflicts"})
	require.NoError(t, err)
	require.Equal(t, "conflicts", conflictsSub.Name())

	expectedSubs := []string{"list", "resolve"}
	for _, name := range expectedSubs {
		found := false
		for _, sub := range conflictsSub.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected conflicts subcommand %q not found", name)
	}
}

// --- loadConfig integration tests ---

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	flags = CLIFlags{ConfigPath: filepath.Join(tmpDir, "nonexistent.toml")}

	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err := loadConfig(cmd)
	require.NoError(t, err)

	cc := cliContextFrom(cmd.Context())
	require.NotNil(t, cc)
	assert.Equal(t, serverconfig.DefaultConfig().Server.ListenAddr, cc.Cfg.Server.ListenAddr)
}

func TestLoadConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("{{invalid toml"), 0o600))

	flags = CLIFlags{ConfigPath: cfgFile}

	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
