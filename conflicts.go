package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/taskmaster/syncserver/internal/store"
	"github.com/taskmaster/syncserver/internal/syncengine"
)

// conflicts flags, bound once in newConflictsCmd.
var (
	conflictsOrgID    string
	resolveChoice     string
	resolveCustomJSON string
	resolveOperatorID string
)

func newConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Inspect and resolve unresolved sync conflicts",
	}
	cmd.PersistentFlags().StringVar(&conflictsOrgID, "org", "", "organization ID (required)")
	_ = cmd.MarkPersistentFlagRequired("org")

	cmd.AddCommand(newConflictsListCmd())
	cmd.AddCommand(newConflictsResolveCmd())

	return cmd
}

func newConflictsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List unresolved conflicts for an organization",
		RunE:  runConflictsList,
	}
}

func newConflictsResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve an unresolved conflict",
		Args:  cobra.ExactArgs(1),
		RunE:  runConflictsResolve,
	}
	cmd.Flags().StringVar(&resolveChoice, "choice", "", "resolution choice: local, remote, or custom (required)")
	cmd.Flags().StringVar(&resolveCustomJSON, "custom", "", "JSON object for --choice=custom")
	cmd.Flags().StringVar(&resolveOperatorID, "operator", "", "operator user ID recorded as resolvedBy (required)")
	_ = cmd.MarkFlagRequired("choice")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}

func runConflictsList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	st, err := store.Open(cmd.Context(), cc.Cfg.Database.Path, cc.Logger)
	if err != nil {
		return fmt.Errorf("conflicts list: %w", err)
	}
	defer st.Close()

	conflicts, err := st.ListUnresolvedConflicts(cmd.Context(), conflictsOrgID)
	if err != nil {
		return fmt.Errorf("conflicts list: %w", err)
	}

	printConflictsTable(conflicts)

	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	choice := syncengine.ResolutionChoice(resolveChoice)
	if choice != syncengine.ChoiceLocal && choice != syncengine.ChoiceRemote && choice != syncengine.ChoiceCustom {
		return fmt.Errorf("conflicts resolve: --choice must be one of local, remote, custom")
	}

	var custom map[string]any
	if choice == syncengine.ChoiceCustom {
		if resolveCustomJSON == "" {
			return fmt.Errorf("conflicts resolve: --custom is required when --choice=custom")
		}
		if err := json.Unmarshal([]byte(resolveCustomJSON), &custom); err != nil {
			return fmt.Errorf("conflicts resolve: parsing --custom: %w", err)
		}
	}

	st, err := store.Open(cmd.Context(), cc.Cfg.Database.Path, cc.Logger)
	if err != nil {
		return fmt.Errorf("conflicts resolve: %w", err)
	}
	defer st.Close()

	engine := syncengine.New(st, cc.Logger, 0)

	resolved, err := engine.ResolveManually(cmd.Context(), conflictsOrgID, resolveOperatorID, args[0], choice, custom)
	if err != nil {
		return fmt.Errorf("conflicts resolve: %w", err)
	}

	printConflictsTable([]*store.Conflict{resolved})

	return nil
}

// printConflictsTable writes a tab-aligned conflicts listing, colorized with
// ANSI codes only when stdout is a terminal.
func printConflictsTable(conflicts []*store.Conflict) {
	color := isatty.IsTerminal(os.Stdout.Fd())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTITY\tREASON\tSTATUS")
	for _, c := range conflicts {
		status := "unresolved"
		if color {
			status = "\033[33munresolved\033[0m"
		}
		if c.IsResolved() {
			status = "resolved"
			if color {
				status = "\033[32mresolved\033[0m"
			}
		}
		fmt.Fprintf(w, "%s\t%s:%s\t%s\t%s\n", c.ID, c.EntityType, c.EntityID, c.Reason, status)
	}
	w.Flush()
}
