package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type crawlerFunc func(ctx context.Context, out *TripletQueue) error

func (f crawlerFunc) Crawl(ctx context.Context, out *TripletQueue) error { return f(ctx, out) }

func emitting(t *testing.T, names ...string) crawlerFunc {
	return func(ctx context.Context, out *TripletQueue) error {
		for _, n := range names {
			if err := out.Add(ctx, mustTriplet(t, n, false)); err != nil {
				return err
			}
		}

		return nil
	}
}

func TestSource_RunsCrawlersInOrderAndCompletes(t *testing.T) {
	t.Parallel()

	q := NewTripletQueue(10)
	src := NewSource(testLogger(t), emitting(t, "/b", "/a"), emitting(t, "/c"))

	require.NoError(t, src.Run(t.Context(), q))
	assert.True(t, q.IsComplete())
	assert.Equal(t, []string{"/b", "/a", "/c"}, drain(t.Context(), q))
}

func TestSource_CrawlersNeverOverlap(t *testing.T) {
	t.Parallel()

	var (
		mu     stdsync.Mutex
		active int
		peak   int
	)

	track := func(context.Context, *TripletQueue) error {
		mu.Lock()
		active++
		peak = max(peak, active)
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()

		return nil
	}

	src := NewSource(nil, crawlerFunc(track), crawlerFunc(track), crawlerFunc(track))
	require.NoError(t, src.Run(t.Context(), NewTripletQueue(1)))
	assert.Equal(t, 1, peak)
}

func TestSource_ErrorStopsRemainingCrawlers(t *testing.T) {
	t.Parallel()

	boom := errors.New("walk failed")
	called := false

	q := NewTripletQueue(10)
	src := NewSource(nil,
		emitting(t, "/a"),
		crawlerFunc(func(context.Context, *TripletQueue) error { return boom }),
		crawlerFunc(func(context.Context, *TripletQueue) error { called = true; return nil }),
	)

	err := src.Run(t.Context(), q)
	require.ErrorIs(t, err, boom)
	assert.False(t, called)
	assert.True(t, q.IsComplete(), "queue is completed on failure too")
	assert.Equal(t, []string{"/a"}, drain(t.Context(), q))
}

func TestSource_PanicBecomesError(t *testing.T) {
	t.Parallel()

	q := NewTripletQueue(10)
	src := NewSource(nil, crawlerFunc(func(context.Context, *TripletQueue) error { panic("bad crawler") }))

	err := src.Run(t.Context(), q)
	require.ErrorIs(t, err, errCrawlerPanic)
	assert.Contains(t, err.Error(), "bad crawler")
	assert.True(t, q.IsComplete())
}

func TestSource_NoCrawlers(t *testing.T) {
	t.Parallel()

	q := NewTripletQueue(1)
	require.NoError(t, NewSource(nil).Run(t.Context(), q))
	assert.True(t, q.IsComplete())
	assert.Empty(t, drain(t.Context(), q))
}
