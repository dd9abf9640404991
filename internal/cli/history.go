package cli

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/placesync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DatabasePath string
	Project      string
	Limit        int
	ID           int64
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled snapshots",
		Long: `List snapshots recorded by reconcile --db or watch --db, most recent
first. With --id, print that snapshot in full.`,
		Example: `  placesync history --db history.db --project ./film
  placesync history --db history.db --id 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.DatabasePath, "db", "", "history database path (required)")
	cmd.Flags().StringVar(&opts.Project, "project", "", "only list this project directory")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum entries to list (0 for all)")
	cmd.Flags().Int64Var(&opts.ID, "id", 0, "show one snapshot with its placements")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	f := opts.formatter(cmd)

	// Opening creates a database, so a missing file is reported instead.
	if _, err := os.Stat(opts.DatabasePath); err != nil {
		return f.Fail(ExitCommandError, CodeHistory, "history database not found", err)
	}
	s, err := store.Open(opts.DatabasePath)
	if err != nil {
		return f.Fail(ExitCommandError, CodeHistory, "failed to open history database", err)
	}
	defer s.Close()

	if opts.ID != 0 {
		entry, err := s.ReadSnapshot(cmd.Context(), opts.ID)
		if errors.Is(err, store.ErrNotFound) {
			return f.Fail(ExitFailure, CodeHistory, "snapshot not found", err)
		}
		if err != nil {
			return f.Fail(ExitCommandError, CodeHistory, "failed to read snapshot", err)
		}
		return f.Emit(entry, func(w io.Writer) error { return RenderSnapshot(w, entry.Snapshot) })
	}

	project := opts.Project
	if project != "" {
		abs, err := filepath.Abs(project)
		if err != nil {
			return f.Fail(ExitCommandError, CodeProject, "invalid project directory", err)
		}
		project = abs
	}

	entries, err := s.ListSnapshots(cmd.Context(), project, opts.Limit)
	if err != nil {
		return f.Fail(ExitCommandError, CodeHistory, "failed to list snapshots", err)
	}
	return f.Emit(entries, func(w io.Writer) error { return RenderHistory(w, entries) })
}
