// Package metric provides the Prometheus registry and metrics HTTP server
// for the synapse device server.
//
// A MetricsRegistry owns a private prometheus.Registry with three groups of
// collectors:
//
//  1. Go runtime and process collectors.
//  2. Core device metrics (Metrics): device state, control requests, per-node
//     data-plane counters and NATS tap health. Nodes share these vectors and
//     label them with node_id and node_type.
//  3. Per-instance collectors registered through MetricsRegistrar, keyed by
//     owner and metric name, e.g. one set of queue gauges per StreamOut node.
//     Owners unregister them when the instance is discarded.
//
// # Usage
//
//	registry := metric.NewMetricsRegistry()
//	registry.CoreMetrics().RecordDeviceState(2)
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("metrics server failed", "error", err)
//	    }
//	}()
//
// Duplicate registration under the same owner and name returns an Invalid
// error rather than panicking, so a node that is re-created after a
// reconfiguration must unregister its collectors first.
package metric
