package buffer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

func newQueue[T any](t *testing.T, capacity int, opts ...Option[T]) *Queue[T] {
	t.Helper()
	q, err := NewQueue[T](capacity, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue[int](t, 4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Put(ctx, i, time.Second))
	}
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, 4, q.Capacity())

	for i := 0; i < 4; i++ {
		got, err := q.Get(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, int64(4), q.Stats().Puts())
	assert.Equal(t, int64(4), q.Stats().Gets())
	assert.Equal(t, int64(4), q.Stats().MaxDepth())
}

func TestQueue_MinimumCapacity(t *testing.T) {
	q := newQueue[string](t, 0)
	assert.Equal(t, 1, q.Capacity())
}

func TestQueue_PutTimesOutWhenFull(t *testing.T) {
	q := newQueue[int](t, 1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1, time.Second))

	start := time.Now()
	err := q.Put(ctx, 2, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, errors.ErrQueueFull)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, int64(1), q.Stats().Rejected())

	assert.ErrorIs(t, q.Put(ctx, 3, 0), errors.ErrQueueFull, "zero timeout never waits")
}

func TestQueue_PutUnblocksOnGet(t *testing.T) {
	q := newQueue[int](t, 1)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1, time.Second))

	done := make(chan error, 1)
	go func() { done <- q.Put(ctx, 2, 2*time.Second) }()

	time.Sleep(20 * time.Millisecond)
	got, err := q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("blocked put did not complete after space was freed")
	}

	got, err = q.Get(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestQueue_GetTimesOut(t *testing.T) {
	q := newQueue[int](t, 2)

	start := time.Now()
	_, err := q.Get(context.Background(), 30*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestQueue_ContextCancellation(t *testing.T) {
	q := newQueue[int](t, 1)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := q.Get(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, q.Put(context.Background(), 1, time.Second))
	err = q.Put(ctx, 2, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_CloseWakesWaiters(t *testing.T) {
	q := newQueue[int](t, 1)

	done := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background(), 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close(), "close is idempotent")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Close")
	}

	err := q.Put(context.Background(), 1, time.Second)
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestQueue_ItemsReadableAfterClose(t *testing.T) {
	q := newQueue[string](t, 2)
	require.NoError(t, q.Put(context.Background(), "a", 0))
	require.NoError(t, q.Close())

	got, err := q.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestQueue_Drain(t *testing.T) {
	var dropped []int
	q := newQueue[int](t, 3, WithDropCallback[int](func(item int) {
		dropped = append(dropped, item)
	}))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Put(ctx, i, 0))
	}

	assert.Equal(t, 3, q.Drain())
	assert.Equal(t, []int{0, 1, 2}, dropped)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(3), q.Stats().Drained())
	assert.Equal(t, 0, q.Drain())
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := newQueue[int](t, 16)
	ctx := context.Background()
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, q.Put(ctx, i, 5*time.Second))
			}
		}()
	}

	received := 0
	for received < producers*perProducer {
		_, err := q.Get(ctx, 5*time.Second)
		require.NoError(t, err)
		received++
	}
	wg.Wait()

	summary := q.Stats().Summary()
	assert.Equal(t, int64(producers*perProducer), summary.Puts)
	assert.Equal(t, int64(producers*perProducer), summary.Gets)
	assert.LessOrEqual(t, summary.MaxDepth, int64(16))
}

func TestQueue_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	q, err := NewQueue[int](2, WithMetrics[int](registry, "node_7"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Put(ctx, 1, 0))
	require.NoError(t, q.Put(ctx, 2, 0))
	assert.ErrorIs(t, q.Put(ctx, 3, 0), errors.ErrQueueFull)
	_, err = q.Get(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(q.metrics.puts))
	assert.Equal(t, 1.0, testutil.ToFloat64(q.metrics.gets))
	assert.Equal(t, 1.0, testutil.ToFloat64(q.metrics.rejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(q.metrics.depth))

	// same name is rejected while the first queue is live
	_, err = NewQueue[int](2, WithMetrics[int](registry, "node_7"))
	require.Error(t, err)

	// and accepted once it is closed
	require.NoError(t, q.Close())
	q2, err := NewQueue[int](2, WithMetrics[int](registry, "node_7"))
	require.NoError(t, err)
	require.NoError(t, q2.Close())
}
