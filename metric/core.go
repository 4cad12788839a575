package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "synapse"

// Metrics contains the device-level metrics shared by the controller, every
// node and the NATS tap.
type Metrics struct {
	// Device
	DeviceState     prometheus.Gauge
	ControlRequests *prometheus.CounterVec
	ControlDuration *prometheus.HistogramVec

	// Nodes
	NodeState      *prometheus.GaugeVec
	NodeBytesIn    *prometheus.CounterVec
	NodeBytesOut   *prometheus.CounterVec
	NodeRecords    *prometheus.CounterVec
	NodeErrors     *prometheus.CounterVec
	NodeDrops      *prometheus.CounterVec
	TransportAlloc *prometheus.GaugeVec

	// NATS tap
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
	RelayPublished     *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance. Collectors are registered by
// NewMetricsRegistry.
func NewMetrics() *Metrics {
	nodeLabels := []string{"node_id", "node_type"}

	return &Metrics{
		DeviceState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "state",
			Help:      "Device state (0=initializing, 1=configured, 2=running, 3=stopped)",
		}),
		ControlRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control plane requests by operation and status code",
		}, []string{"operation", "code"}),
		ControlDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "duration_seconds",
			Help:      "Control plane request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		NodeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "state",
			Help:      "Node state (0=created, 1=configured, 2=running, 3=stopped)",
		}, nodeLabels),
		NodeBytesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "received_bytes_total",
			Help:      "Bytes received from a node's transport",
		}, nodeLabels),
		NodeBytesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "sent_bytes_total",
			Help:      "Bytes sent on a node's transport",
		}, nodeLabels),
		NodeRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "records_total",
			Help:      "Sample records produced or consumed by a node",
		}, nodeLabels),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "errors_total",
			Help:      "Errors observed in a node loop by kind",
		}, []string{"node_id", "node_type", "kind"}),
		NodeDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "dropped_total",
			Help:      "Items dropped by a node by reason",
		}, []string{"node_id", "node_type", "reason"}),
		TransportAlloc: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "endpoints",
			Help:      "Live transport endpoints by role",
		}, []string{"role"}),

		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "connected",
			Help:      "NATS connection status (0=disconnected, 1=connected)",
		}),
		NATSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "reconnects_total",
			Help:      "Total number of NATS reconnections",
		}),
		NATSCircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "nats",
			Name:      "circuit_breaker",
			Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
		}),
		RelayPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "published_total",
			Help:      "Node emissions published to NATS by outcome",
		}, []string{"node_id", "status"}),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.DeviceState,
		c.ControlRequests,
		c.ControlDuration,
		c.NodeState,
		c.NodeBytesIn,
		c.NodeBytesOut,
		c.NodeRecords,
		c.NodeErrors,
		c.NodeDrops,
		c.TransportAlloc,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
		c.RelayPublished,
	}
}

// RecordDeviceState updates the device state gauge
func (c *Metrics) RecordDeviceState(state int) {
	c.DeviceState.Set(float64(state))
}

// RecordControlRequest counts a control plane request and its latency
func (c *Metrics) RecordControlRequest(operation, code string, duration time.Duration) {
	c.ControlRequests.WithLabelValues(operation, code).Inc()
	c.ControlDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// NodeMetrics returns the per-node view of the shared node vectors.
func (c *Metrics) NodeMetrics(nodeID int, nodeType string) *NodeMetrics {
	id := strconv.Itoa(nodeID)
	return &NodeMetrics{
		core:     c,
		id:       id,
		nodeType: nodeType,
		state:    c.NodeState.WithLabelValues(id, nodeType),
		bytesIn:  c.NodeBytesIn.WithLabelValues(id, nodeType),
		bytesOut: c.NodeBytesOut.WithLabelValues(id, nodeType),
		records:  c.NodeRecords.WithLabelValues(id, nodeType),
	}
}

// RecordEndpoint adjusts the live endpoint gauge for a transport role
func (c *Metrics) RecordEndpoint(role string, delta float64) {
	c.TransportAlloc.WithLabelValues(role).Add(delta)
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(state int) {
	c.NATSCircuitBreaker.Set(float64(state))
}

// RecordRelayPublish counts one tap publish attempt
func (c *Metrics) RecordRelayPublish(nodeID int, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	c.RelayPublished.WithLabelValues(strconv.Itoa(nodeID), status).Inc()
}

// NodeMetrics is a node's handle on the shared vectors. A nil *NodeMetrics
// is valid and records nothing.
type NodeMetrics struct {
	core     *Metrics
	id       string
	nodeType string
	state    prometheus.Gauge
	bytesIn  prometheus.Counter
	bytesOut prometheus.Counter
	records  prometheus.Counter
}

// SetState records the node lifecycle state.
func (m *NodeMetrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

// Received counts bytes read from the node's transport.
func (m *NodeMetrics) Received(n int) {
	if m == nil {
		return
	}
	m.bytesIn.Add(float64(n))
}

// Sent counts bytes written to the node's transport.
func (m *NodeMetrics) Sent(n int) {
	if m == nil {
		return
	}
	m.bytesOut.Add(float64(n))
}

// Record counts one sample record handled by the node.
func (m *NodeMetrics) Record() {
	if m == nil {
		return
	}
	m.records.Inc()
}

// Error counts a loop error of the given kind.
func (m *NodeMetrics) Error(kind string) {
	if m == nil {
		return
	}
	m.core.NodeErrors.WithLabelValues(m.id, m.nodeType, kind).Inc()
}

// Drop counts an item discarded for the given reason.
func (m *NodeMetrics) Drop(reason string) {
	if m == nil {
		return
	}
	m.core.NodeDrops.WithLabelValues(m.id, m.nodeType, reason).Inc()
}
