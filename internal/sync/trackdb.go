package sync

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL statements for the tracking database.
const (
	sqlSelectItems = `SELECT name, is_folder, local_path, remote_path, checksum,
		server_modified, synced_at FROM items`

	sqlSelectItem = sqlSelectItems + ` WHERE name = ?`

	sqlUpsertItem = `INSERT INTO items
		(name, is_folder, local_path, remote_path, checksum, server_modified, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		 is_folder = excluded.is_folder,
		 local_path = excluded.local_path,
		 remote_path = excluded.remote_path,
		 checksum = excluded.checksum,
		 server_modified = excluded.server_modified,
		 synced_at = excluded.synced_at`

	sqlDeleteItem = `DELETE FROM items WHERE name = ?`

	sqlCountItems = `SELECT COUNT(*) FROM items`

	sqlInsertRun = `INSERT INTO sync_runs
		(id, started_at, finished_at, direction, succeeded, failed, deferred,
		 unchanged, waves, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlLastRun = `SELECT id, started_at, finished_at, direction, succeeded, failed,
		deferred, unchanged, waves, error
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`
)

// TrackedItem is one row of the tracking database: what was last agreed
// between the local tree and the remote repository for a name.
type TrackedItem struct {
	Name           string
	IsFolder       bool
	LocalPath      string
	RemotePath     string
	Checksum       string
	ServerModified time.Time
	SyncedAt       time.Time
}

// DBItem converts the row into the triplet's database view. Empty recorded
// paths stay nil.
func (ti *TrackedItem) DBItem() *DBItem {
	item := &DBItem{
		Checksum:       ti.Checksum,
		ServerModified: ti.ServerModified,
	}

	if ti.LocalPath != "" {
		item.LocalPath = StrPtr(ti.LocalPath)
	}

	if ti.RemotePath != "" {
		item.RemotePath = StrPtr(ti.RemotePath)
	}

	return item
}

// RunRecord summarizes one completed sync run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Direction  string
	Succeeded  int
	Failed     int
	Deferred   int
	Unchanged  int
	Waves      int
	Error      string
}

// TrackingDB is the persisted tracking database. It is safe for concurrent
// use; writes are serialized through a single connection.
type TrackingDB struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenTrackingDB opens (or creates) the SQLite database at dbPath and
// applies pending migrations.
func OpenTrackingDB(ctx context.Context, dbPath string, logger *slog.Logger) (*TrackingDB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sync: opening tracking database %s: %w", dbPath, err)
	}

	// Single writer; workers serialize on this connection.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("tracking database opened", slog.String("db_path", dbPath))

	return &TrackingDB{db: db, logger: logger, nowFunc: time.Now}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sync: migration filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("sync: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sync: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration", slog.String("source", r.Source.Path))
	}

	return nil
}

// LoadAll returns every tracked item keyed by name.
func (t *TrackingDB) LoadAll(ctx context.Context) (map[string]*TrackedItem, error) {
	rows, err := t.db.QueryContext(ctx, sqlSelectItems)
	if err != nil {
		return nil, fmt.Errorf("sync: loading tracked items: %w", err)
	}
	defer rows.Close()

	items := make(map[string]*TrackedItem)

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}

		items[item.Name] = item
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sync: iterating tracked items: %w", err)
	}

	return items, nil
}

// Get returns the tracked item for name, or nil when there is none.
func (t *TrackingDB) Get(ctx context.Context, name string) (*TrackedItem, error) {
	item, err := scanItem(t.db.QueryRowContext(ctx, sqlSelectItem, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return item, err
}

// Upsert records item as synced now.
func (t *TrackingDB) Upsert(ctx context.Context, item *TrackedItem) error {
	syncedAt := t.nowFunc()

	_, err := t.db.ExecContext(ctx, sqlUpsertItem,
		item.Name,
		item.IsFolder,
		nullString(item.LocalPath),
		nullString(item.RemotePath),
		item.Checksum,
		formatStamp(item.ServerModified),
		syncedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sync: upserting %s: %w", item.Name, err)
	}

	item.SyncedAt = syncedAt

	return nil
}

// Delete removes the record for name. Deleting a missing record is not an error.
func (t *TrackingDB) Delete(ctx context.Context, name string) error {
	if _, err := t.db.ExecContext(ctx, sqlDeleteItem, name); err != nil {
		return fmt.Errorf("sync: deleting %s: %w", name, err)
	}

	return nil
}

// CountItems returns the number of tracked items.
func (t *TrackingDB) CountItems(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, sqlCountItems).Scan(&n); err != nil {
		return 0, fmt.Errorf("sync: counting tracked items: %w", err)
	}

	return n, nil
}

// RecordRun stores the summary of a finished run.
func (t *TrackingDB) RecordRun(ctx context.Context, r *RunRecord) error {
	_, err := t.db.ExecContext(ctx, sqlInsertRun,
		r.ID, r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(), r.Direction,
		r.Succeeded, r.Failed, r.Deferred, r.Unchanged, r.Waves, r.Error,
	)
	if err != nil {
		return fmt.Errorf("sync: recording run %s: %w", r.ID, err)
	}

	return nil
}

// LastRun returns the most recent run, or nil when nothing has run yet.
func (t *TrackingDB) LastRun(ctx context.Context) (*RunRecord, error) {
	var (
		r                 RunRecord
		started, finished int64
	)

	err := t.db.QueryRowContext(ctx, sqlLastRun).Scan(
		&r.ID, &started, &finished, &r.Direction, &r.Succeeded, &r.Failed,
		&r.Deferred, &r.Unchanged, &r.Waves, &r.Error,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sync: reading last run: %w", err)
	}

	r.StartedAt = time.Unix(0, started)
	r.FinishedAt = time.Unix(0, finished)

	return &r, nil
}

// Close closes the database.
func (t *TrackingDB) Close() error {
	return t.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*TrackedItem, error) {
	var (
		item       TrackedItem
		localPath  sql.NullString
		remotePath sql.NullString
		serverMod  string
		syncedAt   int64
	)

	err := row.Scan(&item.Name, &item.IsFolder, &localPath, &remotePath,
		&item.Checksum, &serverMod, &syncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err != nil {
		return nil, fmt.Errorf("sync: scanning tracked item: %w", err)
	}

	item.LocalPath = localPath.String
	item.RemotePath = remotePath.String
	item.SyncedAt = time.Unix(0, syncedAt)

	if serverMod != "" {
		parsed, err := time.Parse(time.RFC3339Nano, serverMod)
		if err != nil {
			return nil, fmt.Errorf("sync: parsing server_modified of %s: %w", item.Name, err)
		}

		item.ServerModified = parsed
	}

	return &item, nil
}

// formatStamp stores server times losslessly; comparison happens on
// ServerStamp, not on the stored text.
func formatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}
