package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmaster/syncserver/internal/serverconfig"
)

// version is set at build time via ldflags.
var version = "dev"

// defaultConfigPath is used when --config is not set. Relative to the
// working directory the server is started from.
const defaultConfigPath = "taskserver.toml"

// CLIFlags holds the persistent flags bound in newRootCmd.
type CLIFlags struct {
	ConfigPath string
	Verbose    bool
	Debug      bool
	Quiet      bool
}

var flags CLIFlags

// CLIContext bundles resolved config and logger. Built once in
// PersistentPreRunE; eliminates redundant config loading in RunE handlers.
type CLIContext struct {
	Cfg    *serverconfig.Config
	Logger *slog.Logger
	Flags  CLIFlags
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context. Returns
// nil if PersistentPreRunE has not populated it yet.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}
	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Panics here are always programmer errors: every command goes
// through PersistentPreRunE before its RunE runs.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — PersistentPreRunE must " +
			"run before RunE")
	}
	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "taskserver",
		Short:   "Task sync server",
		Long:    "HTTP sync server and operator CLI for the offline-first task-management sync engine.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE loads configuration before every command runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", defaultConfigPath, "config file path (TOML)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSweepTombstonesCmd())
	cmd.AddCommand(newConflictsCmd())

	return cmd
}

// loadConfig resolves the effective configuration (defaults -> file -> env)
// and stores the result in the command's context for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	// Bootstrap logger derived from CLI flags only (config doesn't exist yet).
	logger := buildLogger(nil, flags)

	cfg, err := serverconfig.LoadOrDefault(flags.ConfigPath, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Build the final logger incorporating config-file log level.
	finalLogger := buildLogger(cfg, flags)
	cc := &CLIContext{Cfg: cfg, Logger: finalLogger, Flags: flags}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level provides the baseline; --verbose, --debug, and
// --quiet override it because CLI flags always win. The flags are mutually
// exclusive (enforced by Cobra).
func buildLogger(cfg *serverconfig.Config, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			fmt.Fprintf(os.Stderr, "warning: unknown log_level %q, defaulting to warn\n", cfg.Logging.Level)
		}
	}

	if flags.Verbose {
		level = slog.LevelInfo
	}

	if flags.Debug {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
