package sync

import (
	"context"
	"errors"
	"iter"
	stdsync "sync"
)

// ErrQueueComplete is returned by TripletQueue.Add once the queue has been
// marked complete.
var ErrQueueComplete = errors.New("sync: triplet queue is complete")

// TripletQueue is a bounded multi-producer/multi-consumer queue of triplets.
// MarkComplete is terminal: a completed queue accepts no more items and its
// consumers stop once it is drained. Phases that need a queue create a new one.
type TripletQueue struct {
	mu       stdsync.Mutex
	notEmpty *stdsync.Cond
	notFull  *stdsync.Cond
	items    []*Triplet
	capacity int // <= 0 means unbounded
	complete bool
}

// NewTripletQueue creates a queue holding at most capacity items. A
// capacity of zero or less makes Add never block.
func NewTripletQueue(capacity int) *TripletQueue {
	q := &TripletQueue{capacity: capacity}
	q.notEmpty = stdsync.NewCond(&q.mu)
	q.notFull = stdsync.NewCond(&q.mu)

	return q
}

// Add appends t, blocking while the queue is full. It fails with
// ErrQueueComplete after MarkComplete, or with the context error if ctx
// ends while waiting for room.
func (q *TripletQueue) Add(ctx context.Context, t *Triplet) error {
	stop := context.AfterFunc(ctx, q.wakeAll)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.complete && q.full() {
		if err := ctx.Err(); err != nil {
			return err
		}

		q.notFull.Wait()
	}

	if q.complete {
		return ErrQueueComplete
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	q.items = append(q.items, t)
	q.notEmpty.Signal()

	return nil
}

// MarkComplete closes the queue for producers. Consumers drain what is left
// and then finish. Calling it more than once is harmless.
func (q *TripletQueue) MarkComplete() {
	q.mu.Lock()
	q.complete = true
	q.mu.Unlock()

	q.wakeAll()
}

// IsComplete reports whether MarkComplete has been called.
func (q *TripletQueue) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.complete
}

// Len returns the number of queued items.
func (q *TripletQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Consume returns an iterator that yields items until the queue is both
// empty and complete, or ctx ends. Any number of goroutines may range over
// their own Consume iterator concurrently; each item is yielded once.
func (q *TripletQueue) Consume(ctx context.Context) iter.Seq[*Triplet] {
	return func(yield func(*Triplet) bool) {
		for {
			t, ok := q.next(ctx)
			if !ok {
				return
			}

			if !yield(t) {
				return
			}
		}
	}
}

// next blocks until an item is available. ok is false when the queue is
// drained and complete, or ctx ended.
func (q *TripletQueue) next(ctx context.Context) (*Triplet, bool) {
	stop := context.AfterFunc(ctx, q.wakeAll)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.complete {
		if ctx.Err() != nil {
			return nil, false
		}

		q.notEmpty.Wait()
	}

	if len(q.items) == 0 || ctx.Err() != nil {
		return nil, false
	}

	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.notFull.Signal()

	return t, true
}

func (q *TripletQueue) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}

// wakeAll releases every waiter so it can re-check completion and context.
func (q *TripletQueue) wakeAll() {
	q.mu.Lock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.mu.Unlock()
}
