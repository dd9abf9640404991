package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Expect         []int
	DatabasePath   string
	FailUnresolved bool
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile [project-dir]",
		Short: "Run one reconcile pass and print the snapshot",
		Long: `Run a single reconcile pass against a project and print the resulting
placement snapshot.

The project directory defaults to the working directory. With --db (or
history_db in the config) the snapshot is also recorded in the history
journal.`,
		Example: `  placesync reconcile ./film --expect 1,2,3
  placesync reconcile --format json --fail-unresolved`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().IntSliceVar(&opts.Expect, "expect", nil, "placement numbers that must have an asset")
	cmd.Flags().StringVar(&opts.DatabasePath, "db", "", "history database (overrides history_db)")
	cmd.Flags().BoolVar(&opts.FailUnresolved, "fail-unresolved", false, "exit 1 when placements remain unresolved")

	return cmd
}

func runReconcile(cmd *cobra.Command, opts *ReconcileOptions, args []string) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, CodeConfig, "failed to load config", err)
	}
	logger := opts.newLogger(cfg, cmd.ErrOrStderr())

	dir, err := resolveProject(args)
	if err != nil {
		return f.Fail(ExitCommandError, CodeProject, "invalid project directory", err)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return f.Fail(ExitCommandError, CodeConfig, "invalid placement policy", err)
	}
	defer eng.Dispose()

	eng.SetProjectDirectory(dir)
	eng.SetExpectedPlacements(opts.Expect)
	if err := eng.ReconcileNow(cmd.Context(), projection.SourceManual); err != nil {
		return f.Fail(ExitCommandError, CodeReconcile, "reconcile failed", err)
	}
	snap := eng.Snapshot()

	dbPath := opts.DatabasePath
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath != "" {
		if err := recordSnapshot(cmd, dbPath, snap); err != nil {
			return f.Fail(ExitCommandError, CodeHistory, "failed to record snapshot", err)
		}
		f.VerboseLog("recorded revision %d in %s", snap.Revision, dbPath)
	}

	if err := f.Emit(snap, func(w io.Writer) error { return RenderSnapshot(w, snap) }); err != nil {
		return err
	}

	if opts.FailUnresolved && snap.UnresolvedCount > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d placement(s) unresolved", snap.UnresolvedCount))
	}
	return nil
}

func recordSnapshot(cmd *cobra.Command, dbPath string, snap *projection.Snapshot) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	_, _, err = s.WriteSnapshot(cmd.Context(), snap, time.Now())
	return err
}
