package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/tonimelisma/tripletsync/internal/config"
)

// DefaultQueueCapacity bounds the bulk queue when none is configured.
const DefaultQueueCapacity = 256

// State directory layout.
const (
	trackingDBName = "tracking.db"
	lockFileName   = "tripletsync.lock"
)

// ErrAlreadyRunning is returned by RunOnce when another run holds the lock
// of the same state directory.
var ErrAlreadyRunning = errors.New("sync: another sync run is active for this folder")

// EngineConfig holds the options for NewEngine.
type EngineConfig struct {
	LocalRoot     string // absolute path of the local sync root
	StateDir      string // tracking database and lock file live here
	Direction     Direction
	Concurrency   int
	QueueCapacity int
	DryRun        bool
	Filter        *config.FilterConfig
	Session       Session // remote repository
	Logger        *slog.Logger
}

// Status is the persisted state of a sync folder.
type Status struct {
	TrackedItems int
	LastRun      *RunRecord // nil before the first run
}

// Engine runs complete sync cycles for one sync folder: crawl, bulk pass,
// deletion waves, run bookkeeping.
type Engine struct {
	cfg     EngineConfig
	db      *TrackingDB
	filter  *Filter
	lock    *flock.Flock
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewEngine opens the tracking database in cfg.StateDir, creating the
// directory when needed.
func NewEngine(ctx context.Context, cfg *EngineConfig) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if cfg.Filter == nil {
		cfg.Filter = &config.FilterConfig{}
	}

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil { //nolint:mnd // state is private
		return nil, fmt.Errorf("sync: creating state directory %s: %w", cfg.StateDir, err)
	}

	filter, err := NewFilter(cfg.Filter, cfg.LocalRoot, logger)
	if err != nil {
		return nil, err
	}

	db, err := OpenTrackingDB(ctx, filepath.Join(cfg.StateDir, trackingDBName), logger)
	if err != nil {
		return nil, fmt.Errorf("sync: creating engine: %w", err)
	}

	return &Engine{
		cfg:     *cfg,
		db:      db,
		filter:  filter,
		lock:    flock.New(filepath.Join(cfg.StateDir, lockFileName)),
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the tracking database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Filter returns the filter applied to this sync folder.
func (e *Engine) Filter() *Filter {
	return e.filter
}

// RunOnce performs one sync cycle. Only one cycle per state directory runs
// at a time, across processes; a concurrent attempt fails fast with
// ErrAlreadyRunning. The report is returned even when err is non-nil.
func (e *Engine) RunOnce(ctx context.Context) (*Report, error) {
	locked, err := e.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("sync: acquiring run lock: %w", err)
	}

	if !locked {
		return nil, ErrAlreadyRunning
	}

	defer func() {
		if err := e.lock.Unlock(); err != nil {
			e.logger.Warn("releasing run lock", slog.String("error", err.Error()))
		}
	}()

	runID := uuid.New().String()
	logger := e.logger.With(slog.String("run_id", runID))

	logger.Info("sync run started",
		slog.String("local_root", e.cfg.LocalRoot),
		slog.String("direction", e.cfg.Direction.String()),
		slog.Bool("dry_run", e.cfg.DryRun),
	)

	capacity := e.cfg.QueueCapacity
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}

	queue := NewTripletQueue(capacity)

	crawler := NewTreeCrawler(TreeCrawlerConfig{
		LocalRoot: e.cfg.LocalRoot,
		StateDir:  e.cfg.StateDir,
		Direction: e.cfg.Direction,
		Session:   e.cfg.Session,
		Snapshot:  e.db,
		Filter:    e.filter,
	}, logger)

	folder := &SyncFolder{
		LocalRoot: e.cfg.LocalRoot,
		StateDir:  e.cfg.StateDir,
		Direction: e.cfg.Direction,
		DryRun:    e.cfg.DryRun,
	}

	processor := NewProcessor(NewExecutor(e.db, logger), e.cfg.Session, folder, ProcessorOptions{
		Concurrency: e.cfg.Concurrency,
		RunID:       runID,
		NowFunc:     e.nowFunc,
	}, logger)

	crawlErr := make(chan error, 1)

	go func() {
		crawlErr <- NewSource(logger, crawler).Run(ctx, queue)
	}()

	report, procErr := processor.Run(ctx, queue)
	runErr := errors.Join(<-crawlErr, procErr)

	e.recordRun(ctx, logger, report, runErr)

	logger.Info("sync run finished",
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("deferred", report.Deferred),
		slog.Int("waves", report.Waves),
		slog.Duration("duration", report.Duration()),
	)

	return report, runErr
}

// recordRun stores the run summary. Failing to store it does not fail the run.
func (e *Engine) recordRun(ctx context.Context, logger *slog.Logger, report *Report, runErr error) {
	if e.cfg.DryRun {
		return
	}

	rec := &RunRecord{
		ID:         report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Direction:  report.Direction.String(),
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Deferred:   report.Deferred,
		Unchanged:  report.Unchanged,
		Waves:      report.Waves,
	}

	if runErr != nil {
		rec.Error = runErr.Error()
	}

	if err := e.db.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("recording sync run", slog.String("error", err.Error()))
	}
}

// Status reads the persisted state of the sync folder.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	n, err := e.db.CountItems(ctx)
	if err != nil {
		return nil, err
	}

	last, err := e.db.LastRun(ctx)
	if err != nil {
		return nil, err
	}

	return &Status{TrackedItems: n, LastRun: last}, nil
}
