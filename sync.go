package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/tripletsync/internal/sync"
)

// errSyncFailures is returned when a run finished but some items failed.
// The summary has already been printed, so main exits without a message.
var errSyncFailures = errors.New("sync finished with failures")

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local folder with the remote repository",
		Long: `Run a sync cycle between the local folder and the remote repository.

By default, sync is bidirectional. Use --direction local_to_remote or
remote_to_local for one-way sync, and --dry-run to log what would happen
without changing anything. With --watch, sync keeps running and re-syncs on
local changes and every poll interval.`,
		RunE: runSync,
	}

	cmd.Flags().String("direction", "", "bidirectional, local_to_remote or remote_to_local")
	cmd.Flags().Int("concurrency", 0, "number of parallel workers (0 = default)")
	cmd.Flags().Bool("dry-run", false, "log sync actions without executing them")
	cmd.Flags().Bool("watch", false, "keep syncing on local changes and every poll interval")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	engine, err := newSyncEngine(cmd.Context(), cc.Cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := shutdownContext(cmd.Context(), logger, func() { os.Exit(1) })
	defer stop()

	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return err
	}

	if watch {
		return runWatch(ctx, cc, engine)
	}

	report, err := engine.RunOnce(ctx)
	if report != nil {
		if printErr := printReport(os.Stdout, report, cc.Flags); printErr != nil {
			return printErr
		}
	}

	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if report.Failed > 0 {
		return errSyncFailures
	}

	return nil
}

// runWatch keeps the folder in sync until the first interrupt. A PID file
// in the state directory keeps a second watcher from starting.
func runWatch(ctx context.Context, cc *CLIContext, engine *sync.Engine) error {
	cfg := cc.Cfg

	cleanup, err := writePIDFile(watchPIDPath(cfg.Sync.StateDir))
	if err != nil {
		return err
	}
	defer cleanup()

	w := sync.NewWatcher(engine, sync.WatchConfig{
		LocalRoot:    cfg.Sync.LocalRoot,
		StateDir:     cfg.Sync.StateDir,
		Filter:       engine.Filter(),
		PollInterval: cfg.Sync.PollDuration(),
		Debounce:     cfg.Sync.DebounceDuration(),
		OnCycle: func(report *sync.Report, _ error) {
			if err := printReport(os.Stdout, report, cc.Flags); err != nil {
				cc.Logger.Warn("printing sync summary", slog.String("error", err.Error()))
			}
		},
	}, cc.Logger)

	cc.Statusf("Watching %s (interrupt to stop)\n", cfg.Sync.LocalRoot)

	return w.Run(ctx)
}
