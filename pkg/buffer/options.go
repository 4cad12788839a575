package buffer

import (
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// Option configures queue behavior using the functional options pattern.
type Option[T any] func(*queueOptions[T])

type queueOptions[T any] struct {
	dropCallback DropCallback[T]

	// metricsReg is optional; when set the queue exports Prometheus metrics
	metricsReg  *metric.MetricsRegistry
	metricsName string
}

// WithMetrics enables Prometheus metrics labeled with the queue name.
// If registry is nil or name is empty, this option is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, name string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

// WithDropCallback sets a callback invoked for every item discarded by Drain.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
