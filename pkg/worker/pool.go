package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// Pool represents a generic worker pool that can process any work type T
type Pool[T any] struct {
	workers   int
	queueSize int
	processor func(context.Context, T) error

	workChan chan T
	metrics  *poolMetrics
	wg       sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	closing     bool
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	metricsRegistry *metric.MetricsRegistry
	metricsName     string
}

type poolMetrics struct {
	queueDepth     prometheus.Gauge
	submitted      prometheus.Counter
	processed      prometheus.Counter
	failed         prometheus.Counter
	dropped        prometheus.Counter
	processingTime *prometheus.HistogramVec
	registered     []string
}

// Option represents a configuration option for the worker pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics labeled with name.
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(p *Pool[T]) {
		p.metricsRegistry = registry
		p.metricsName = name
	}
}

// NewPool creates a new worker pool. Non-positive sizes fall back to 4
// workers and a queue of 1024.
func NewPool[T any](workers, queueSize int, processor func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if processor == nil {
		panic(ErrNilProcessor)
	}

	pool := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		processor: processor,
		workChan:  make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool
}

func (p *Pool[T]) registerMetrics() error {
	labels := prometheus.Labels{"pool": p.metricsName}
	m := &poolMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "queue_depth",
			ConstLabels: labels, Help: "Current worker pool queue depth",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "submitted_total",
			ConstLabels: labels, Help: "Work items accepted by the pool",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "processed_total",
			ConstLabels: labels, Help: "Work items processed",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "failed_total",
			ConstLabels: labels, Help: "Work items whose processor returned an error",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "dropped_total",
			ConstLabels: labels, Help: "Work items dropped because the queue was full",
		}),
		processingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "synapse", Subsystem: "worker", Name: "processing_duration_seconds",
			ConstLabels: labels, Help: "Time spent processing work items",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"status"}),
	}

	r := p.metricsRegistry
	steps := []struct {
		name string
		fn   func() error
	}{
		{"worker_queue_depth", func() error { return r.RegisterGauge(p.metricsName, "worker_queue_depth", m.queueDepth) }},
		{"worker_submitted", func() error { return r.RegisterCounter(p.metricsName, "worker_submitted", m.submitted) }},
		{"worker_processed", func() error { return r.RegisterCounter(p.metricsName, "worker_processed", m.processed) }},
		{"worker_failed", func() error { return r.RegisterCounter(p.metricsName, "worker_failed", m.failed) }},
		{"worker_dropped", func() error { return r.RegisterCounter(p.metricsName, "worker_dropped", m.dropped) }},
		{"worker_duration", func() error {
			return r.RegisterHistogramVec(p.metricsName, "worker_duration", m.processingTime)
		}},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			p.metrics = m
			p.unregisterMetrics()
			return err
		}
		m.registered = append(m.registered, step.name)
	}
	p.metrics = m
	return nil
}

func (p *Pool[T]) unregisterMetrics() {
	if p.metrics == nil {
		return
	}
	for _, name := range p.metrics.registered {
		p.metricsRegistry.Unregister(p.metricsName, name)
	}
	p.metrics = nil
}

// Submit queues work without blocking. Returns ErrQueueFull if the queue is
// at capacity.
func (p *Pool[T]) Submit(work T) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.closing {
		return ErrPoolStopped
	}

	select {
	case p.workChan <- work:
		p.submitted.Add(1)
		if p.metrics != nil {
			p.metrics.submitted.Inc()
			p.metrics.queueDepth.Set(float64(len(p.workChan)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.metrics != nil {
			p.metrics.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Start launches the workers. Cancelling ctx makes workers exit without
// draining the queue.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	if p.metricsRegistry != nil && p.metricsName != "" {
		if err := p.registerMetrics(); err != nil {
			return err
		}
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.started = true
	return nil
}

// Stop closes the queue and waits up to timeout for workers to finish the
// queued work. Calling Stop on a pool that never started, or twice, is a
// no-op.
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	if !p.closing {
		close(p.workChan)
		p.closing = true
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.stopped = true
		p.unregisterMetrics()
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Stats returns current pool statistics
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.workChan),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case work, ok := <-p.workChan:
			if !ok {
				return
			}
			p.process(ctx, work)
		}
	}
}

func (p *Pool[T]) process(ctx context.Context, work T) {
	start := time.Now()
	err := p.processor(ctx, work)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	// metrics pointer is cleared only after every worker has exited
	if m := p.metrics; m != nil {
		m.processed.Inc()
		status := "success"
		if err != nil {
			m.failed.Inc()
			status = "error"
		}
		m.processingTime.WithLabelValues(status).Observe(time.Since(start).Seconds())
		m.queueDepth.Set(float64(len(p.workChan)))
	}
}
