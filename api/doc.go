// Package api serves the synapse control plane over HTTP/JSON.
//
//	GET  /v1/info       device identity, status, peripherals, configuration
//	POST /v1/configure  body is a device.Configuration
//	POST /v1/start
//	POST /v1/stop
//	GET  /healthz       aggregated node health
//
// Every control response body is a device.Status whose code is one of ok,
// undefined_error, validation_error or invalid_state. The HTTP status
// follows the code: 200, 500, 400 and 409 respectively. Configure bodies
// are checked against a JSON Schema before they reach the controller.
package api
