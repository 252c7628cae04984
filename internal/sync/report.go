package sync

import (
	"slices"
	"strings"
	stdsync "sync"
	"time"
)

// maxRecordedResults caps the per-item result list so a huge tree cannot
// grow the report without bound. Counters stay exact past the cap.
const maxRecordedResults = 10000

// ItemStatus is the final state of one item in a run.
type ItemStatus string

// Item statuses.
const (
	StatusSucceeded ItemStatus = "succeeded"
	StatusFailed    ItemStatus = "failed"
)

// ItemResult is the reported outcome for one triplet.
type ItemResult struct {
	Name     string
	IsFolder bool
	Action   ActionType
	Status   ItemStatus
	Phase    Phase
	Wave     int // 1-based wave number for folder deletions, 0 otherwise
	Err      error
}

// Report is the summary of one run. Unchanged items are only counted.
type Report struct {
	RunID      string
	Direction  Direction
	StartedAt  time.Time
	FinishedAt time.Time

	Succeeded int
	Failed    int
	Deferred  int
	Unchanged int
	Waves     int
	Dropped   int // results not kept because of maxRecordedResults

	Results []ItemResult
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Errors returns the errors of all failed items in result order.
func (r *Report) Errors() []error {
	var errs []error

	for i := range r.Results {
		if r.Results[i].Err != nil {
			errs = append(errs, r.Results[i].Err)
		}
	}

	return errs
}

// Result returns the first recorded result for name.
func (r *Report) Result(name string) (ItemResult, bool) {
	for i := range r.Results {
		if r.Results[i].Name == name {
			return r.Results[i], true
		}
	}

	return ItemResult{}, false
}

// reportBuilder collects results from concurrent workers.
type reportBuilder struct {
	mu     stdsync.Mutex
	report Report
}

func newReportBuilder(runID string, dir Direction, startedAt time.Time) *reportBuilder {
	return &reportBuilder{report: Report{RunID: runID, Direction: dir, StartedAt: startedAt}}
}

// record folds one executor outcome into the report. Deferred outcomes are
// counted here and reported again when their wave runs.
func (b *reportBuilder) record(o Outcome, phase Phase, wave int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case o.Kind == OutcomeDeferred:
		b.report.Deferred++
		return
	case o.Kind == OutcomeSucceeded && o.Action == ActionNone:
		b.report.Unchanged++
		return
	case o.Kind == OutcomeSucceeded:
		b.report.Succeeded++
	default:
		b.report.Failed++
	}

	if len(b.report.Results) >= maxRecordedResults {
		b.report.Dropped++
		return
	}

	res := ItemResult{
		Action: o.Action,
		Status: StatusSucceeded,
		Phase:  phase,
		Wave:   wave,
		Err:    o.Err,
	}

	if o.Kind == OutcomeFailed {
		res.Status = StatusFailed
	}

	if o.Triplet != nil {
		res.Name = o.Triplet.Name
		res.IsFolder = o.Triplet.IsFolder()
	}

	b.report.Results = append(b.report.Results, res)
}

func (b *reportBuilder) setWaves(n int) {
	b.mu.Lock()
	b.report.Waves = n
	b.mu.Unlock()
}

// finish stamps the end time and returns the report with results sorted by
// phase, then wave, then name, so output is stable across concurrency levels.
func (b *reportBuilder) finish(finishedAt time.Time) *Report {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.report.FinishedAt = finishedAt

	slices.SortStableFunc(b.report.Results, func(x, y ItemResult) int {
		if x.Phase != y.Phase {
			return int(x.Phase) - int(y.Phase)
		}

		if x.Wave != y.Wave {
			return x.Wave - y.Wave
		}

		return strings.Compare(x.Name, y.Name)
	})

	r := b.report

	return &r
}
