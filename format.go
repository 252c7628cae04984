package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tonimelisma/tripletsync/internal/sync"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last column is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// reportJSON is the JSON-serializable run summary.
type reportJSON struct {
	RunID      string           `json:"run_id"`
	Direction  string           `json:"direction"`
	StartedAt  string           `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Deferred   int              `json:"deferred"`
	Unchanged  int              `json:"unchanged"`
	Waves      int              `json:"waves"`
	Dropped    int              `json:"dropped,omitempty"`
	Results    []itemResultJSON `json:"results"`
}

type itemResultJSON struct {
	Name     string `json:"name"`
	IsFolder bool   `json:"is_folder"`
	Action   string `json:"action"`
	Status   string `json:"status"`
	Phase    string `json:"phase"`
	Wave     int    `json:"wave,omitempty"`
	Error    string `json:"error,omitempty"`
}

// printReport writes the run summary as JSON or as a table of changed
// items followed by the counts.
func printReport(w io.Writer, r *sync.Report, flags CLIFlags) error {
	if flags.JSON {
		return printReportJSON(w, r)
	}

	if len(r.Results) > 0 && !flags.Quiet {
		printResultsTable(w, r.Results)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, summaryLine(r))

	if r.Dropped > 0 {
		fmt.Fprintf(w, "(%s further results not shown)\n", humanize.Comma(int64(r.Dropped)))
	}

	return nil
}

func printResultsTable(w io.Writer, results []sync.ItemResult) {
	headers := []string{"STATUS", "ACTION", "WAVE", "NAME", "ERROR"}
	rows := make([][]string, len(results))

	for i := range results {
		res := &results[i]

		name := res.Name
		if res.IsFolder {
			name += "/"
		}

		wave := "-"
		if res.Wave > 0 {
			wave = strconv.Itoa(res.Wave)
		}

		var errText string
		if res.Err != nil {
			errText = res.Err.Error()
		}

		rows[i] = []string{string(res.Status), string(res.Action), wave, name, errText}
	}

	printTable(w, headers, rows)
}

// summaryLine renders the counts of a run on one line.
func summaryLine(r *sync.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Sync %s: %s succeeded, %s failed, %s unchanged",
		r.Direction, humanize.Comma(int64(r.Succeeded)), humanize.Comma(int64(r.Failed)),
		humanize.Comma(int64(r.Unchanged)))

	if r.Deferred > 0 {
		fmt.Fprintf(&b, ", %s folder deletions in %d %s",
			humanize.Comma(int64(r.Deferred)), r.Waves, pluralize(r.Waves, "wave", "waves"))
	}

	fmt.Fprintf(&b, " (took %s)", r.Duration().Round(time.Millisecond))

	return b.String()
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}

	return many
}

func printReportJSON(w io.Writer, r *sync.Report) error {
	out := reportJSON{
		RunID:      r.RunID,
		Direction:  r.Direction.String(),
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: r.Duration().Milliseconds(),
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Deferred:   r.Deferred,
		Unchanged:  r.Unchanged,
		Waves:      r.Waves,
		Dropped:    r.Dropped,
		Results:    make([]itemResultJSON, len(r.Results)),
	}

	for i := range r.Results {
		res := &r.Results[i]
		out.Results[i] = itemResultJSON{
			Name:     res.Name,
			IsFolder: res.IsFolder,
			Action:   string(res.Action),
			Status:   string(res.Status),
			Phase:    res.Phase.String(),
			Wave:     res.Wave,
		}

		if res.Err != nil {
			out.Results[i].Error = res.Err.Error()
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
