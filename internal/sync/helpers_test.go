package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/tripletsync/internal/config"
	"github.com/tonimelisma/tripletsync/internal/remote"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

// testLogger returns a debug-level logger so engine output shows up in
// failing test runs.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// --- In-memory ledger ---

type memLedger struct {
	mu      stdsync.Mutex
	items   map[string]*TrackedItem
	upserts []string
	deletes []string

	upsertErr error
	deleteErr error
}

func newMemLedger() *memLedger {
	return &memLedger{items: make(map[string]*TrackedItem)}
}

func (l *memLedger) Get(_ context.Context, name string) (*TrackedItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.items[name], nil
}

func (l *memLedger) Upsert(_ context.Context, item *TrackedItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.upsertErr != nil {
		return l.upsertErr
	}

	cp := *item
	l.items[item.Name] = &cp
	l.upserts = append(l.upserts, item.Name)

	return nil
}

func (l *memLedger) Delete(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.deleteErr != nil {
		return l.deleteErr
	}

	delete(l.items, name)
	l.deletes = append(l.deletes, name)

	return nil
}

func (l *memLedger) LoadAll(_ context.Context) (map[string]*TrackedItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]*TrackedItem, len(l.items))
	for k, v := range l.items {
		cp := *v
		out[k] = &cp
	}

	return out, nil
}

func (l *memLedger) item(name string) *TrackedItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.items[name]
}

// --- Function-field session mock; nil fields delegate to a DirRepository ---

type mockSession struct {
	repo *remote.DirRepository

	statFn   func(ctx context.Context, p string) (*remote.Item, error)
	deleteFn func(ctx context.Context, p string, isFolder bool) error
	walkFn   func(ctx context.Context, fn func(remote.Item) error) error
}

func (m *mockSession) Walk(ctx context.Context, fn func(remote.Item) error) error {
	if m.walkFn != nil {
		return m.walkFn(ctx, fn)
	}

	return m.repo.Walk(ctx, fn)
}

func (m *mockSession) Stat(ctx context.Context, p string) (*remote.Item, error) {
	if m.statFn != nil {
		return m.statFn(ctx, p)
	}

	return m.repo.Stat(ctx, p)
}

func (m *mockSession) Upload(ctx context.Context, p string, r io.Reader) (*remote.Item, error) {
	return m.repo.Upload(ctx, p, r)
}

func (m *mockSession) Download(ctx context.Context, p string, w io.Writer) (*remote.Item, error) {
	return m.repo.Download(ctx, p, w)
}

func (m *mockSession) CreateFolder(ctx context.Context, p string) (*remote.Item, error) {
	return m.repo.CreateFolder(ctx, p)
}

func (m *mockSession) Delete(ctx context.Context, p string, isFolder bool) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, p, isFolder)
	}

	return m.repo.Delete(ctx, p, isFolder)
}

// --- Sync folder fixture: a local root, a remote repository, a ledger ---

type fixture struct {
	t      *testing.T
	local  string
	repo   *remote.DirRepository
	ledger *memLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := remote.NewDirRepository(t.TempDir(), nil)
	require.NoError(t, err)

	return &fixture{t: t, local: t.TempDir(), repo: repo, ledger: newMemLedger()}
}

func (f *fixture) folder() *SyncFolder {
	return &SyncFolder{LocalRoot: f.local, Direction: Bidirectional}
}

func (f *fixture) localPath(name string) string {
	return filepath.Join(f.local, filepath.FromSlash(name))
}

func (f *fixture) remotePath(name string) string {
	return filepath.Join(f.repo.Root(), filepath.FromSlash(name))
}

func (f *fixture) writeLocal(name, content string) {
	f.t.Helper()

	p := f.localPath(name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) mkdirLocal(name string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(f.localPath(name), 0o755))
}

func (f *fixture) writeRemote(name, content string) {
	f.t.Helper()

	p := f.remotePath(name)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(f.t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) mkdirRemote(name string) {
	f.t.Helper()
	require.NoError(f.t, os.MkdirAll(f.remotePath(name), 0o755))
}

func (f *fixture) readLocal(name string) string {
	f.t.Helper()

	data, err := os.ReadFile(f.localPath(name))
	require.NoError(f.t, err)

	return string(data)
}

func (f *fixture) readRemote(name string) string {
	f.t.Helper()

	data, err := os.ReadFile(f.remotePath(name))
	require.NoError(f.t, err)

	return string(data)
}

// track records name as synced in its current state on both sides.
func (f *fixture) track(name string, isFolder bool) {
	f.t.Helper()

	item := &TrackedItem{Name: name, IsFolder: isFolder, LocalPath: name, RemotePath: name}

	if st, err := f.repo.Stat(context.Background(), name); err == nil {
		item.ServerModified = st.ModTime
	}

	if !isFolder {
		if sum, err := FileChecksum(f.localPath(name)); err == nil {
			item.Checksum = sum
		}
	}

	require.NoError(f.t, f.ledger.Upsert(context.Background(), item))
}

// triplet builds the triplet of name from the fixture's current state,
// the way the crawler would.
func (f *fixture) triplet(name string, isFolder bool) *Triplet {
	f.t.Helper()

	return f.tripletDir(name, isFolder, Bidirectional)
}

func (f *fixture) tripletDir(name string, isFolder bool, dir Direction) *Triplet {
	f.t.Helper()

	var (
		local *LocalItem
		rem   *RemoteItem
		db    *DBItem
	)

	if _, err := os.Stat(f.localPath(name)); err == nil {
		local = &LocalItem{RootPath: f.local, RelativePath: name}

		if !isFolder {
			sum, err := FileChecksum(f.localPath(name))
			require.NoError(f.t, err)

			local.Checksum = sum
		}
	}

	if st, err := f.repo.Stat(context.Background(), name); err == nil {
		rem = &RemoteItem{RelativePath: st.Path, LastModified: st.ModTime, Size: st.Size}
	}

	if ti := f.ledger.item(name); ti != nil {
		db = ti.DBItem()
	}

	t, err := NewTriplet(name, isFolder, dir, local, rem, db)
	require.NoError(f.t, err)

	return t
}

func (f *fixture) session() *mockSession {
	return &mockSession{repo: f.repo}
}

func newTestFilter(t *testing.T, root string, mutate func(*config.FilterConfig)) *Filter {
	t.Helper()

	cfg := config.DefaultConfig().Filter
	if mutate != nil {
		mutate(&cfg)
	}

	filter, err := NewFilter(&cfg, root, nil)
	require.NoError(t, err)

	return filter
}
