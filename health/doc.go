// Package health reports the health of nodes, the device controller and the
// NATS tap.
//
// A node keeps a Tracker, which counts loop errors and records activity
// without locks on the data path. The controller turns each node's Report
// into a Status and aggregates them:
//
//	statuses := make([]health.Status, 0, len(nodes))
//	for _, n := range nodes {
//	    statuses = append(statuses, health.FromReport(n.Name(), n.Health()))
//	}
//	device := health.Aggregate("device", statuses)
//
// Aggregation is worst-wins: any unhealthy child makes the parent unhealthy,
// otherwise any degraded child makes it degraded.
//
// Error text that reaches a Status is sanitized so URLs and credential-like
// key/value pairs are not exposed through the health endpoint.
package health
