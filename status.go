package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/tripletsync/internal/config"
	"github.com/tonimelisma/tripletsync/internal/sync"
)

// Watcher state constants for status reporting.
const (
	watchStateRunning = "running"
	watchStateStopped = "not running"
	neverSynced       = "never"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync folder and its last run",
		Long: `Display the configured folders, the number of tracked items, whether a
watcher is running, and the summary of the most recent sync run.`,
		RunE: runStatus,
	}
}

// statusInfo is the status of one sync folder.
type statusInfo struct {
	LocalRoot    string         `json:"local_root"`
	RemoteRoot   string         `json:"remote_root"`
	StateDir     string         `json:"state_dir"`
	Direction    string         `json:"direction"`
	TrackedItems int            `json:"tracked_items"`
	Watcher      string         `json:"watcher"`
	WatcherPID   int            `json:"watcher_pid,omitempty"`
	LastRun      *statusLastRun `json:"last_run,omitempty"`
}

type statusLastRun struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	Direction  string `json:"direction"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Deferred   int    `json:"deferred"`
	Unchanged  int    `json:"unchanged"`
	Waves      int    `json:"waves"`
	Error      string `json:"error,omitempty"`

	finished time.Time
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	engine, err := newSyncEngine(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	st, err := engine.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading status: %w", err)
	}

	info := buildStatusInfo(cc.Cfg, st, runningWatcher(cc.Cfg.Sync.StateDir))

	if cc.Flags.JSON {
		return printStatusJSON(os.Stdout, info)
	}

	printStatusText(os.Stdout, info, time.Now())

	return nil
}

func buildStatusInfo(cfg *config.Resolved, st *sync.Status, watcherPID int) *statusInfo {
	info := &statusInfo{
		LocalRoot:    cfg.Sync.LocalRoot,
		RemoteRoot:   cfg.Sync.RemoteRoot,
		StateDir:     cfg.Sync.StateDir,
		Direction:    cfg.Sync.Direction,
		TrackedItems: st.TrackedItems,
		Watcher:      watchStateStopped,
	}

	if dir, err := sync.ParseDirection(cfg.Sync.Direction); err == nil {
		info.Direction = dir.String()
	}

	if watcherPID > 0 {
		info.Watcher = watchStateRunning
		info.WatcherPID = watcherPID
	}

	if r := st.LastRun; r != nil {
		info.LastRun = &statusLastRun{
			ID:         r.ID,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: r.FinishedAt.UTC().Format(time.RFC3339),
			Direction:  r.Direction,
			Succeeded:  r.Succeeded,
			Failed:     r.Failed,
			Deferred:   r.Deferred,
			Unchanged:  r.Unchanged,
			Waves:      r.Waves,
			Error:      r.Error,
			finished:   r.FinishedAt,
		}
	}

	return info
}

func printStatusJSON(w io.Writer, info *statusInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(info); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printStatusText(w io.Writer, info *statusInfo, now time.Time) {
	fmt.Fprintf(w, "Local:     %s\n", info.LocalRoot)
	fmt.Fprintf(w, "Remote:    %s\n", info.RemoteRoot)
	fmt.Fprintf(w, "State:     %s\n", info.StateDir)
	fmt.Fprintf(w, "Direction: %s\n", info.Direction)
	fmt.Fprintf(w, "Tracked:   %s items\n", humanize.Comma(int64(info.TrackedItems)))

	if info.WatcherPID > 0 {
		fmt.Fprintf(w, "Watcher:   %s (PID %d)\n", info.Watcher, info.WatcherPID)
	} else {
		fmt.Fprintf(w, "Watcher:   %s\n", info.Watcher)
	}

	r := info.LastRun
	if r == nil {
		fmt.Fprintf(w, "Last sync: %s\n", neverSynced)
		return
	}

	fmt.Fprintf(w, "Last sync: %s (%s)\n", humanize.RelTime(r.finished, now, "ago", "from now"), formatTime(r.finished))
	fmt.Fprintf(w, "           %d succeeded, %d failed, %d unchanged, %d folder deletions in %d waves\n",
		r.Succeeded, r.Failed, r.Unchanged, r.Deferred, r.Waves)

	if r.Error != "" {
		fmt.Fprintf(w, "           error: %s\n", r.Error)
	}
}
