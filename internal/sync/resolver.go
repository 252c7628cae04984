package sync

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrDeletionEnqueue is returned when a deferred folder could not be handed
// to its deletion wave. The remaining waves are not run.
var ErrDeletionEnqueue = errors.New("sync: folder deletion could not be enqueued")

// CompareFolderPaths orders paths segment by segment. At the first differing
// segment the greater one sorts first; when one path is a prefix of the
// other in every compared segment, the longer path sorts first. Nested
// folders therefore come before their ancestors.
func CompareFolderPaths(a, b string) int {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")

	for i := range min(len(as), len(bs)) {
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return -c
		}
	}

	return cmp.Compare(len(bs), len(as))
}

// SortFolderDeletions sorts folders in place with CompareFolderPaths.
func SortFolderDeletions(folders []*Triplet) {
	slices.SortStableFunc(folders, func(a, b *Triplet) int {
		return CompareFolderPaths(a.Name, b.Name)
	})
}

// IsPathAncestor reports whether ancestor is p itself or a folder above it.
// Only whole segments count: "/docs" is not an ancestor of "/docs2".
func IsPathAncestor(ancestor, p string) bool {
	ancestor = strings.TrimSuffix(ancestor, "/")
	p = strings.TrimSuffix(p, "/")

	if ancestor == "" || ancestor == p {
		return true
	}

	return strings.HasPrefix(p, ancestor+"/")
}

// pathsOverlap reports whether one path contains the other.
func pathsOverlap(a, b string) bool {
	return IsPathAncestor(a, b) || IsPathAncestor(b, a)
}

// PlanWaves splits folders, already sorted with CompareFolderPaths, into
// waves whose members may be deleted concurrently. Each wave starts at the
// first remaining folder (the anchor) and greedily takes every later folder
// that does not overlap the most recently taken one; overlapping folders
// wait for a later wave. Every wave takes at least its anchor, so k folders
// need at most k waves.
func PlanWaves(sorted []*Triplet) [][]*Triplet {
	var waves [][]*Triplet

	remaining := slices.Clone(sorted)

	for len(remaining) > 0 {
		anchor := remaining[0]
		wave := []*Triplet{anchor}
		rest := make([]*Triplet, 0, len(remaining)-1)

		for _, t := range remaining[1:] {
			if pathsOverlap(anchor.Name, t.Name) {
				rest = append(rest, t)
				continue
			}

			wave = append(wave, t)
			anchor = t
		}

		waves = append(waves, wave)
		remaining = rest
	}

	return waves
}

// FolderDeletionResolver executes deferred folder deletions wave by wave.
// Every wave gets its own queue and worker pool and must finish before the
// next one starts.
type FolderDeletionResolver struct {
	run         *runner
	concurrency int
	logger      *slog.Logger
}

func newFolderDeletionResolver(run *runner, concurrency int, logger *slog.Logger) *FolderDeletionResolver {
	return &FolderDeletionResolver{run: run, concurrency: concurrency, logger: logger}
}

// Resolve deletes folders and returns the number of waves started. The
// resolver owns folders from here on; it sorts the slice in place.
func (r *FolderDeletionResolver) Resolve(ctx context.Context, folders []*Triplet, report *reportBuilder) (int, error) {
	if len(folders) == 0 {
		return 0, nil
	}

	SortFolderDeletions(folders)
	waves := PlanWaves(folders)

	r.logger.Info("resolver: deleting deferred folders",
		slog.Int("folders", len(folders)),
		slog.Int("waves", len(waves)),
	)

	for i, wave := range waves {
		if err := r.runWave(ctx, i+1, wave, report); err != nil {
			return i + 1, err
		}
	}

	return len(waves), nil
}

// runWave enqueues one wave into a fresh queue and waits for its pool.
func (r *FolderDeletionResolver) runWave(ctx context.Context, n int, wave []*Triplet, report *reportBuilder) error {
	q := NewTripletQueue(len(wave))
	g, gctx := errgroup.WithContext(ctx)

	for range min(r.concurrency, len(wave)) {
		g.Go(func() error {
			for t := range q.Consume(gctx) {
				report.record(r.run.execute(gctx, t, PhaseFolderDeletion), PhaseFolderDeletion, n)
			}

			return gctx.Err()
		})
	}

	var enqueueErr error

	for _, t := range wave {
		if err := q.Add(gctx, t); err != nil {
			enqueueErr = fmt.Errorf("%w: %s (wave %d): %w", ErrDeletionEnqueue, t.Name, n, err)
			break
		}

		r.logger.Debug("resolver: folder scheduled", slog.String("name", t.Name), slog.Int("wave", n))
	}

	q.MarkComplete()

	waitErr := g.Wait()

	if enqueueErr != nil {
		r.logger.Error("resolver: aborting remaining waves", slog.String("error", enqueueErr.Error()))
		return enqueueErr
	}

	if waitErr != nil {
		return fmt.Errorf("sync: deletion wave %d: %w", n, waitErr)
	}

	r.logger.Debug("resolver: wave complete", slog.Int("wave", n), slog.Int("folders", len(wave)))

	return nil
}
