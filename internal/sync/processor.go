package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the worker count per phase when none is configured.
const DefaultConcurrency = 4

var (
	errActionPanic    = errors.New("sync: panic in action executor")
	errDeferredInWave = errors.New("sync: executor deferred a folder deletion during a deletion wave")
)

// ProcessorOptions tunes a Processor. Zero values select defaults.
type ProcessorOptions struct {
	Concurrency int
	RunID       string
	NowFunc     func() time.Time
}

// runner invokes the action executor for one triplet with panic isolation.
// The bulk pass and every deletion wave share it.
type runner struct {
	exec    ActionExecutor
	session Session
	folder  *SyncFolder
	logger  *slog.Logger
}

// execute never panics and never returns an outcome without a triplet.
func (r *runner) execute(ctx context.Context, t *Triplet, phase Phase) (o Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("processor: panic in action execution",
				slog.String("name", t.Name),
				slog.String("phase", phase.String()),
				slog.Any("panic", rec),
			)

			o = Outcome{Kind: OutcomeFailed, Triplet: t, Err: fmt.Errorf("%w: %s: %v", errActionPanic, t.Name, rec)}
		}
	}()

	o = r.exec.Execute(ctx, Request{Triplet: t, Session: r.session, Folder: r.folder, Phase: phase})
	if o.Triplet == nil {
		o.Triplet = t
	}

	if o.Kind == OutcomeDeferred && phase != PhaseBulk {
		o = Outcome{Kind: OutcomeFailed, Action: o.Action, Triplet: t, Err: fmt.Errorf("%w: %s", errDeferredInWave, t.Name)}
	}

	if o.Kind == OutcomeFailed {
		if o.Err == nil {
			o.Err = fmt.Errorf("sync: %s: %s failed", t.Name, o.Action)
		}

		r.logger.Warn("processor: item failed",
			slog.String("name", t.Name),
			slog.String("action", string(o.Action)),
			slog.String("phase", phase.String()),
			slog.String("error", o.Err.Error()),
		)
	}

	return o
}

// deferralCollector gathers folder deletions during the bulk pass. Adding
// never fails; the resolver takes ownership once the bulk pass has ended.
type deferralCollector struct {
	mu      stdsync.Mutex
	folders []*Triplet
}

func (c *deferralCollector) add(t *Triplet) {
	c.mu.Lock()
	c.folders = append(c.folders, t)
	c.mu.Unlock()
}

func (c *deferralCollector) take() []*Triplet {
	c.mu.Lock()
	defer c.mu.Unlock()

	folders := c.folders
	c.folders = nil

	return folders
}

// Processor drains a triplet queue with a fixed pool of workers, then
// deletes the deferred folders in waves.
type Processor struct {
	run         *runner
	concurrency int
	runID       string
	nowFunc     func() time.Time
	logger      *slog.Logger
}

// NewProcessor creates a processor. session and folder are handed to the
// executor unchanged with every request.
func NewProcessor(
	exec ActionExecutor, session Session, folder *SyncFolder, opts ProcessorOptions, logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}

	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}

	if folder == nil {
		folder = &SyncFolder{}
	}

	return &Processor{
		run:         &runner{exec: exec, session: session, folder: folder, logger: logger},
		concurrency: opts.Concurrency,
		runID:       opts.RunID,
		nowFunc:     opts.NowFunc,
		logger:      logger,
	}
}

// Run consumes every triplet of in exactly once and returns the run report.
// It returns after in has been drained and marked complete and all deletion
// waves have finished. Item failures are reported, not returned; the error
// is reserved for cancellation and deletion-queue faults.
func (p *Processor) Run(ctx context.Context, in *TripletQueue) (*Report, error) {
	report := newReportBuilder(p.runID, p.run.folder.Direction, p.nowFunc())
	deferred := &deferralCollector{}

	p.logger.Info("processor: bulk pass started", slog.Int("workers", p.concurrency))

	if err := p.bulkPass(ctx, in, deferred, report); err != nil {
		return report.finish(p.nowFunc()), fmt.Errorf("sync: bulk pass: %w", err)
	}

	folders := deferred.take()

	p.logger.Info("processor: bulk pass complete", slog.Int("deferred_folders", len(folders)))

	resolver := newFolderDeletionResolver(p.run, p.concurrency, p.logger)
	waves, err := resolver.Resolve(ctx, folders, report)
	report.setWaves(waves)

	return report.finish(p.nowFunc()), err
}

// bulkPass runs the worker pool until in is drained and complete.
func (p *Processor) bulkPass(ctx context.Context, in *TripletQueue, deferred *deferralCollector, report *reportBuilder) error {
	g, gctx := errgroup.WithContext(ctx)

	for range p.concurrency {
		g.Go(func() error {
			for t := range in.Consume(gctx) {
				o := p.run.execute(gctx, t, PhaseBulk)
				if o.Kind == OutcomeDeferred {
					p.logger.Debug("processor: folder deletion deferred", slog.String("name", t.Name))
					deferred.add(t)
				}

				report.record(o, PhaseBulk, 0)
			}

			return gctx.Err()
		})
	}

	return g.Wait()
}
