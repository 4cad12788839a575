// Package node implements the device's nodes: configurable units of work
// that move data between a source and a sink.
//
// Every node follows the same lifecycle. A node is created by a Registry
// constructor, configured one or more times, started once and stopped once.
// A stopped node is never restarted; the device replaces it.
//
//	Created -> Configured -> Running -> Stopped
//
// Start provisions the node's transport and runs its loop on a dedicated
// goroutine. Every blocking call in a loop is bounded by one second, so Stop
// observes cancellation promptly and joins the goroutine before releasing
// the transport.
//
// Variants:
//
//   - StreamIn receives UDP datagrams (unicast or multicast) or pub/sub
//     frames and emits each payload downstream.
//   - StreamOut queues payloads, encodes records with the wire codec and
//     sends them to a unicast destination, a multicast group or pub/sub
//     subscribers.
//   - ElectricalBroadband configures a driver's channels and emits the
//     samples it polls as broadband records.
//   - OpticalStimulation queues frames for a Stimulator.
//
// Nodes emit through an Emitter set by the device, which routes payloads to
// connected nodes.
package node
