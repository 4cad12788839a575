package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// DropCallback is called for every item discarded by Drain.
type DropCallback[T any] func(item T)

// Queue is a bounded FIFO queue safe for concurrent producers and consumers.
type Queue[T any] struct {
	items     chan T
	closed    chan struct{}
	closeOnce sync.Once
	stats     *Statistics
	metrics   *queueMetrics
	opts      *queueOptions[T]
}

// NewQueue creates a queue holding at most capacity items. A capacity below
// one is raised to one. Returns an error if metrics registration fails when
// metrics are requested.
func NewQueue[T any](capacity int, options ...Option[T]) (*Queue[T], error) {
	if capacity <= 0 {
		capacity = 1
	}
	opts := applyOptions(options...)

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsName != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsName, capacity)
		if err != nil {
			return nil, errors.WrapTransient(err, "Queue", "NewQueue", "metrics registration")
		}
	}

	return &Queue[T]{
		items:   make(chan T, capacity),
		closed:  make(chan struct{}),
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Put appends item, waiting up to timeout for space. It fails with
// errors.ErrQueueFull when the wait expires, with ctx.Err() when ctx ends
// first, and with errors.ErrAlreadyStopped once the queue is closed.
// A timeout of zero or less never waits.
func (q *Queue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	if q.isClosed() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Queue", "Put", "queue closed")
	}

	select {
	case q.items <- item:
		q.recordPut()
		return nil
	default:
	}

	if timeout <= 0 {
		q.recordRejected()
		return errors.ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.items <- item:
		q.recordPut()
		return nil
	case <-timer.C:
		q.recordRejected()
		return errors.ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Queue", "Put", "queue closed during wait")
	}
}

// Get removes the oldest item, waiting up to timeout for one to arrive. It
// fails with errors.ErrTimeout when the wait expires and with ctx.Err() when
// ctx ends first. Items still queued when the queue is closed remain
// readable.
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, error) {
	var zero T

	select {
	case item := <-q.items:
		q.recordGet()
		return item, nil
	default:
	}

	if q.isClosed() {
		return zero, errors.WrapInvalid(errors.ErrAlreadyStopped, "Queue", "Get", "queue closed")
	}
	if timeout <= 0 {
		return zero, errors.ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-q.items:
		q.recordGet()
		return item, nil
	case <-timer.C:
		return zero, errors.ErrTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.closed:
		return zero, errors.WrapInvalid(errors.ErrAlreadyStopped, "Queue", "Get", "queue closed during wait")
	}
}

// Drain removes every queued item without delivering it and returns how many
// were discarded. The drop callback, if any, sees each one.
func (q *Queue[T]) Drain() int {
	n := 0
	for {
		select {
		case item := <-q.items:
			n++
			q.stats.Drain()
			if q.opts.dropCallback != nil {
				q.opts.dropCallback(item)
			}
		default:
			q.stats.UpdateDepth(int64(len(q.items)))
			q.updateDepth()
			return n
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Capacity returns the maximum number of items the queue can hold.
func (q *Queue[T]) Capacity() int {
	return cap(q.items)
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() *Statistics {
	return q.stats
}

// Close wakes every blocked Put and Get and unregisters the queue's metrics.
// Calling Close more than once is safe.
func (q *Queue[T]) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
		if q.metrics != nil {
			q.metrics.unregister()
		}
	})
	return nil
}

func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) recordPut() {
	q.stats.Put()
	q.stats.UpdateDepth(int64(len(q.items)))
	if q.metrics != nil {
		q.metrics.puts.Inc()
	}
	q.updateDepth()
}

func (q *Queue[T]) recordGet() {
	q.stats.Get()
	q.stats.UpdateDepth(int64(len(q.items)))
	if q.metrics != nil {
		q.metrics.gets.Inc()
	}
	q.updateDepth()
}

func (q *Queue[T]) recordRejected() {
	q.stats.Reject()
	if q.metrics != nil {
		q.metrics.rejected.Inc()
	}
}

func (q *Queue[T]) updateDepth() {
	if q.metrics != nil {
		q.metrics.depth.Set(float64(len(q.items)))
	}
}
