package buffer

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// queueMetrics holds Prometheus metrics for one queue.
type queueMetrics struct {
	registry   *metric.MetricsRegistry
	name       string
	registered []string

	puts     prometheus.Counter
	gets     prometheus.Counter
	rejected prometheus.Counter
	depth    prometheus.Gauge
}

func newQueueMetrics(registry *metric.MetricsRegistry, name string, capacity int) (*queueMetrics, error) {
	labels := prometheus.Labels{"queue": name}
	m := &queueMetrics{
		registry: registry,
		name:     name,
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "synapse",
			Subsystem:   "queue",
			Name:        "puts_total",
			ConstLabels: labels,
			Help:        "Items accepted by the queue",
		}),
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "synapse",
			Subsystem:   "queue",
			Name:        "gets_total",
			ConstLabels: labels,
			Help:        "Items removed from the queue",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "synapse",
			Subsystem:   "queue",
			Name:        "rejected_total",
			ConstLabels: labels,
			Help:        "Puts that gave up because the queue stayed full",
		}),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "synapse",
			Subsystem:   "queue",
			Name:        "depth",
			ConstLabels: labels,
			Help:        "Current number of queued items",
		}),
	}
	capacityGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "synapse",
		Subsystem:   "queue",
		Name:        "capacity",
		ConstLabels: labels,
		Help:        "Maximum number of queued items",
	})
	capacityGauge.Set(float64(capacity))

	register := []struct {
		metricName string
		fn         func() error
	}{
		{"queue_puts", func() error { return registry.RegisterCounter(name, "queue_puts", m.puts) }},
		{"queue_gets", func() error { return registry.RegisterCounter(name, "queue_gets", m.gets) }},
		{"queue_rejected", func() error { return registry.RegisterCounter(name, "queue_rejected", m.rejected) }},
		{"queue_depth", func() error { return registry.RegisterGauge(name, "queue_depth", m.depth) }},
		{"queue_capacity", func() error { return registry.RegisterGauge(name, "queue_capacity", capacityGauge) }},
	}
	for _, r := range register {
		if err := r.fn(); err != nil {
			// only roll back what this queue registered
			m.unregister()
			return nil, err
		}
		m.registered = append(m.registered, r.metricName)
	}
	return m, nil
}

func (m *queueMetrics) unregister() {
	for _, metricName := range m.registered {
		m.registry.Unregister(m.name, metricName)
	}
	m.registered = nil
}
