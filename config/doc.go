// Package config loads the synapsed daemon configuration.
//
// Configuration is layered: built-in defaults, then each file added with
// AddLayer (YAML or JSON, later files win field by field), then SYNAPSE_*
// environment variables. Unknown keys in a file are rejected.
//
//	cfg, err := config.Load("/etc/synapsed.yaml")
//
// A minimal file:
//
//	device:
//	  name: blackrock-lab-2
//	data_plane:
//	  host: 10.40.61.1
//	  interface: eth1
//	nats:
//	  url: nats://localhost:4222
//
// Environment overrides include SYNAPSE_DEVICE_NAME, SYNAPSE_DEVICE_SERIAL,
// SYNAPSE_CONTROL_LISTEN, SYNAPSE_METRICS_PORT, SYNAPSE_DATA_HOST,
// SYNAPSE_DATA_INTERFACE, SYNAPSE_DATA_BASE_PORT and SYNAPSE_NATS_URL.
//
// Files must be regular files under 1MB; relative paths may not escape the
// working directory.
package config
