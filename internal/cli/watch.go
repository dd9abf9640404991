package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/placesync/internal/clock"
	"github.com/roach88/placesync/internal/feed"
	"github.com/roach88/placesync/internal/projection"
	"github.com/roach88/placesync/internal/store"
	"github.com/roach88/placesync/internal/watch"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Expect       []int
	DatabasePath string
	WSURL        string
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [project-dir]",
		Short: "Watch a project and print every placement change",
		Long: `Watch a project's manifest and placements directory, plus the push
feed when one is configured, and print a snapshot each time the placement
view changes.

Runs until interrupted.`,
		Example: `  placesync watch ./film --expect 1,2,3
  placesync watch --ws-url ws://localhost:8765/events --db history.db`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().IntSliceVar(&opts.Expect, "expect", nil, "placement numbers that must have an asset")
	cmd.Flags().StringVar(&opts.DatabasePath, "db", "", "history database (overrides history_db)")
	cmd.Flags().StringVar(&opts.WSURL, "ws-url", "", "push feed endpoint (overrides ws_url)")

	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions, args []string) error {
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

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	dbPath := opts.DatabasePath
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath != "" {
		s, err := store.Open(dbPath)
		if err != nil {
			return f.Fail(ExitCommandError, CodeHistory, "failed to open history database", err)
		}
		defer func() {
			if closeErr := s.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		journal := store.NewJournal(s, clock.System(), logger, 0)
		defer eng.Subscribe(journal.Record)()
		g.Go(func() error { return journal.Run(gctx) })
	}

	defer eng.Subscribe(printer(f, logger))()

	eng.SetProjectDirectory(dir)
	eng.SetExpectedPlacements(opts.Expect)

	w := watch.New(eng,
		filepath.Join(dir, cfg.ManifestPath),
		filepath.Join(dir, cfg.PlacementsDir),
		logger)
	g.Go(func() error { return w.Run(gctx) })

	wsURL := opts.WSURL
	if wsURL == "" {
		wsURL = cfg.WSURL
	}
	if wsURL != "" {
		client := feed.New(wsURL, eng, feed.WithLogger(logger))
		g.Go(func() error { return client.Run(gctx) })
	}

	logger.Info("watch starting", "dir", dir, "feed", wsURL != "", "history", dbPath != "")
	eng.TriggerReconcile(projection.SourceProjectLoad, "")

	<-gctx.Done()
	eng.Dispose()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return f.Fail(ExitCommandError, CodeReconcile, "watch stopped", err)
	}
	logger.Info("watch stopped gracefully")
	return nil
}

// printer returns a listener that writes every committed snapshot.
// Reset snapshots carry no pass result and are skipped.
func printer(f *OutputFormatter, logger *slog.Logger) projection.Listener {
	var mu sync.Mutex
	return func(snap *projection.Snapshot) {
		if snap == nil || snap.Revision == 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		err := f.Emit(snap, func(w io.Writer) error {
			if err := RenderSnapshot(w, snap); err != nil {
				return err
			}
			_, err := io.WriteString(w, "\n")
			return err
		})
		if err != nil {
			logger.Error("snapshot_output_failed", "revision", snap.Revision, "error", err)
		}
	}
}
