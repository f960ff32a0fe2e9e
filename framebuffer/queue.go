// Package framebuffer implements the bounded FIFO that sits between the
// decode producer and the playback pacing loop.
package framebuffer

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avplayer/helpers/closuresignaler"
	"github.com/xaionaro-go/avplayer/logger"
	"go.uber.org/atomic"
)

// DefaultCapacity is the number of decoded frames kept ahead of presentation.
const DefaultCapacity = 4

// Releaser is implemented by items that hold resources which must be
// returned when the queue is closed with the item still resident.
type Releaser interface {
	Release() bool
}

type Metrics struct {
	Enqueued        atomic.Uint64
	Dequeued        atomic.Uint64
	ReleasedOnClose atomic.Uint64
	MaxOccupancy    atomic.Int64
}

func (m *Metrics) String() string {
	return fmt.Sprintf(
		"enqueued:%d dequeued:%d released_on_close:%d max_occupancy:%d",
		m.Enqueued.Load(), m.Dequeued.Load(), m.ReleasedOnClose.Load(), m.MaxOccupancy.Load(),
	)
}

// Queue is safe for one producer and one consumer running concurrently
// without any external locking. The capacity is enforced exactly.
type Queue[T any] struct {
	*closuresignaler.ClosureSignaler
	ch      chan T
	Metrics Metrics
}

func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		ClosureSignaler: closuresignaler.New(),
		ch:              make(chan T, capacity),
	}
}

func (q *Queue[T]) String() string {
	return fmt.Sprintf("Queue(%d/%d)", len(q.ch), cap(q.ch))
}

func (q *Queue[T]) Count() int {
	return len(q.ch)
}

func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

func (q *Queue[T]) IsFull() bool {
	return len(q.ch) >= cap(q.ch)
}

func (q *Queue[T]) onEnqueued() {
	q.Metrics.Enqueued.Inc()
	occupancy := int64(len(q.ch))
	for {
		max := q.Metrics.MaxOccupancy.Load()
		if occupancy <= max || q.Metrics.MaxOccupancy.CompareAndSwap(max, occupancy) {
			return
		}
	}
}

// TryEnqueue never blocks. It returns false if the queue is full or closed.
func (q *Queue[T]) TryEnqueue(item T) bool {
	if q.IsClosed() {
		return false
	}
	select {
	case q.ch <- item:
		q.onEnqueued()
		return true
	default:
		return false
	}
}

// Enqueue blocks while the queue is full.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	if q.IsClosed() {
		return fmt.Errorf("the queue is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.CloseChan():
		return fmt.Errorf("the queue is closed")
	case q.ch <- item:
		q.onEnqueued()
		if q.IsClosed() {
			q.releaseResident()
		}
		return nil
	}
}

// TryDequeue never blocks. The second value is false if no item is ready.
func (q *Queue[T]) TryDequeue() (_ret T, _ok bool) {
	select {
	case item := <-q.ch:
		q.Metrics.Dequeued.Inc()
		return item, true
	default:
		return _ret, false
	}
}

// WaitFull polls every pollInterval until the queue reaches its capacity
// or abort is closed.
func (q *Queue[T]) WaitFull(
	ctx context.Context,
	pollInterval time.Duration,
	abort <-chan struct{},
) (_err error) {
	logger.Debugf(ctx, "WaitFull(%v)", pollInterval)
	defer func() { logger.Debugf(ctx, "/WaitFull(%v): %v (%s)", pollInterval, _err, q) }()

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if q.IsFull() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.CloseChan():
			return fmt.Errorf("the queue is closed")
		case <-abort:
			return nil
		case <-t.C:
		}
	}
}

// Close rejects further enqueues and releases every resident item once.
func (q *Queue[T]) Close(ctx context.Context) error {
	if !q.ClosureSignaler.Close(ctx) {
		return nil
	}
	q.releaseResident()
	logger.Debugf(ctx, "closed the queue: %s", &q.Metrics)
	return nil
}

func (q *Queue[T]) releaseResident() {
	for {
		item, ok := q.TryDequeue()
		if !ok {
			return
		}
		if r, ok := any(item).(Releaser); ok {
			r.Release()
			q.Metrics.ReleasedOnClose.Inc()
		}
	}
}
