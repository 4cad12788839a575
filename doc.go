// Package synapse is a synapse device server for Blackrock Cereplex-style
// acquisition hardware. It exposes a neural interface as a configurable set
// of dataflow nodes behind a small control plane.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          Control API (HTTP)         │  info, configure,
//	│        api.Server, /v1/...          │  start, stop
//	└─────────────────────────────────────┘
//	           ↓ drives
//	┌─────────────────────────────────────┐
//	│        device.Controller            │  lifecycle state,
//	│  (validate, instantiate, route)     │  node graph
//	└─────────────────────────────────────┘
//	           ↓ owns
//	┌─────────────────────────────────────┐
//	│              Nodes                  │  StreamIn, StreamOut,
//	│  node.Registry, node.Node           │  ElectricalBroadband,
//	│                                     │  OpticalStimulation
//	└─────────────────────────────────────┘
//	           ↓ move records over
//	┌─────────────────────────────────────┐
//	│   transport.Provisioner + wire      │  UDP unicast/multicast,
//	│                                     │  WebSocket pub/sub
//	└─────────────────────────────────────┘
//
// Node emissions can also be mirrored to NATS through relay.Relay, and the
// daemon serves Prometheus metrics and a health endpoint via metric.Server.
//
// # Packages
//
// Control plane:
//   - device: lifecycle controller and configuration validation
//   - api: JSON control API with schema-validated configuration
//   - config: layered YAML configuration with environment overrides
//
// Data plane:
//   - node: node kinds, registry and routing contract
//   - driver: acquisition hardware boundary; driver/sim simulates a hub
//   - transport: socket provisioning for node endpoints
//   - wire: sample record codec
//
// Infrastructure:
//   - errors: classified errors and control-plane status codes
//   - metric: Prometheus registry and HTTP server
//   - health: component health aggregation
//   - natsclient, relay: NATS connection and node tap
//   - pkg/buffer, pkg/retry, pkg/timestamp, pkg/worker: shared helpers
//
// # Running
//
//	go build -o bin/synapsed ./cmd/synapsed
//	./bin/synapsed --config synapsed.yaml
//
// Then configure and start the device:
//
//	curl -X POST localhost:647/v1/configure -d @device.json
//	curl -X POST localhost:647/v1/start
package synapse
