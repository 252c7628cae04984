package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/tripletsync/internal/sync"
)

func TestFormatTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	sameYear := time.Date(now.Year(), time.March, 15, 10, 30, 0, 0, time.UTC)
	diffYear := time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC)

	t.Run("same year", func(t *testing.T) {
		t.Parallel()

		result := formatTime(sameYear)
		assert.Contains(t, result, "Mar")
		assert.Contains(t, result, "15")
		assert.Contains(t, result, "10:30")
	})

	t.Run("different year", func(t *testing.T) {
		t.Parallel()

		result := formatTime(diffYear)
		assert.Contains(t, result, "Dec")
		assert.Contains(t, result, "25")
		assert.Contains(t, result, "2020")
	})
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	headers := []string{"NAME", "SIZE", "MODIFIED"}
	rows := [][]string{
		{"file.txt", "1.2 MiB", "Jan 15 10:30"},
		{"folder/", "0 B", "Feb  1 09:00"},
	}

	printTable(&buf, headers, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME      SIZE     MODIFIED", lines[0])
	assert.Equal(t, "file.txt  1.2 MiB  Jan 15 10:30", lines[1])
	assert.Equal(t, "folder/   0 B      Feb  1 09:00", lines[2])
}

func sampleReport() *sync.Report {
	start := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	return &sync.Report{
		RunID:      "run-42",
		Direction:  sync.Bidirectional,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Succeeded:  1234,
		Failed:     1,
		Deferred:   2,
		Unchanged:  7,
		Waves:      2,
		Results: []sync.ItemResult{
			{Name: "/a.txt", Action: sync.ActionUpload, Status: sync.StatusSucceeded, Phase: sync.PhaseBulk},
			{Name: "/b.txt", Action: sync.ActionDownload, Status: sync.StatusFailed, Phase: sync.PhaseBulk, Err: errors.New("disk full")},
			{Name: "/docs/sub", IsFolder: true, Action: sync.ActionDeleteRemote, Status: sync.StatusSucceeded, Phase: sync.PhaseFolderDeletion, Wave: 1},
		},
	}
}

func TestSummaryLine(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"Sync bidirectional: 1,234 succeeded, 1 failed, 7 unchanged, 2 folder deletions in 2 waves (took 1.5s)",
		summaryLine(sampleReport()))

	r := &sync.Report{Direction: sync.RemoteToLocal, Deferred: 1, Waves: 1}
	assert.Equal(t, "Sync remote_to_local: 0 succeeded, 0 failed, 0 unchanged, 1 folder deletions in 1 wave (took 0s)", summaryLine(r))

	quiet := &sync.Report{Direction: sync.LocalToRemote}
	assert.NotContains(t, summaryLine(quiet), "folder deletions")
}

func TestPrintReport_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, sampleReport(), CLIFlags{}))

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "/docs/sub/")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "1,234 succeeded")

	buf.Reset()
	require.NoError(t, printReport(&buf, sampleReport(), CLIFlags{Quiet: true}))
	assert.NotContains(t, buf.String(), "STATUS", "quiet prints only the summary")
}

func TestPrintReport_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, sampleReport(), CLIFlags{JSON: true}))

	var got reportJSON
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	assert.Equal(t, "run-42", got.RunID)
	assert.Equal(t, "bidirectional", got.Direction)
	assert.Equal(t, int64(1500), got.DurationMS)
	assert.Equal(t, 2, got.Waves)
	require.Len(t, got.Results, 3)
	assert.Equal(t, "disk full", got.Results[1].Error)
	assert.Equal(t, "folder-deletion", got.Results[2].Phase)
	assert.Equal(t, 1, got.Results[2].Wave)
}
