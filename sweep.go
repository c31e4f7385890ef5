package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/sweeper"
)

func newSweepTombstonesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-tombstones",
		Short: "Delete expired tombstone rows once",
		Long:  "Runs a single tombstone sweep and exits. The serve command runs this on a ticker automatically; this is for cron or manual invocation.",
		RunE:  runSweepTombstones,
	}
}

func runSweepTombstones(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	st, err := store.Open(cmd.Context(), cc.Cfg.Database.Path, cc.Logger)
	if err != nil {
		return fmt.Errorf("sweep-tombstones: %w", err)
	}
	defer st.Close()

	// interval is irrelevant for a one-shot run; RunOnce ignores it.
	s := sweeper.New(st, 0, cc.Logger)
	if err := s.RunOnce(cmd.Context()); err != nil {
		return fmt.Errorf("sweep-tombstones: %w", err)
	}

	return nil
}
