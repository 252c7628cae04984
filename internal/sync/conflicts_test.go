package sync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindConflictCopies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.writeLocal("/docs/report.txt", "current")
	f.writeLocal(filepath.ToSlash(conflictCopyPath("/docs/report.txt", testNow)), "older")
	f.writeLocal(filepath.ToSlash(conflictCopyPath("/.bashrc", testNow)), "rc")
	f.writeLocal("/notes-conflict-version.txt", "no stamp")
	f.writeLocal("/.state/x-conflict-version-20261014-120000", "state")

	copies, err := FindConflictCopies(f.local, f.localPath("/.state"))
	require.NoError(t, err)
	require.Len(t, copies, 2)

	assert.Equal(t, "/.bashrc-conflict-version-20261014-120000", copies[0].Path)
	assert.Equal(t, "/.bashrc", copies[0].Original)
	assert.Equal(t, "/docs/report-conflict-version-20261014-120000.txt", copies[1].Path)
	assert.Equal(t, "/docs/report.txt", copies[1].Original)
	assert.Equal(t, int64(len("older")), copies[1].Size)
}

func TestFindConflictCopies_MissingRoot(t *testing.T) {
	t.Parallel()

	_, err := FindConflictCopies(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}
