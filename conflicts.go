package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/tripletsync/internal/sync"
)

func newConflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflict copies in the local folder",
		Long: `List the local files set aside when an item changed on both sides.

Each copy holds the local version; the original name holds the remote
version. Conflict copies are never synced. Delete or merge them by hand.`,
		RunE: runConflicts,
	}
}

// conflictJSON is the JSON-serializable representation of a conflict copy.
type conflictJSON struct {
	Path     string `json:"path"`
	Original string `json:"original"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
}

func runConflicts(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	copies, err := sync.FindConflictCopies(cc.Cfg.Sync.LocalRoot, cc.Cfg.Sync.StateDir)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printConflictsJSON(os.Stdout, copies)
	}

	if len(copies) == 0 {
		fmt.Println("No conflict copies.")
		return nil
	}

	printConflictsTable(os.Stdout, copies)

	return nil
}

func printConflictsJSON(w io.Writer, copies []sync.ConflictCopy) error {
	items := make([]conflictJSON, len(copies))
	for i := range copies {
		c := &copies[i]
		items[i] = conflictJSON{
			Path:     c.Path,
			Original: c.Original,
			Size:     c.Size,
			Modified: c.ModTime.UTC().Format(time.RFC3339),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(items); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

func printConflictsTable(w io.Writer, copies []sync.ConflictCopy) {
	headers := []string{"COPY", "ORIGINAL", "SIZE", "MODIFIED"}
	rows := make([][]string, len(copies))

	for i := range copies {
		c := &copies[i]
		rows[i] = []string{c.Path, c.Original, humanize.IBytes(uint64(c.Size)), formatTime(c.ModTime)}
	}

	printTable(w, headers, rows)
}
