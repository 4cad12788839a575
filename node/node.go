package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// Type tags a node variant.
type Type string

// Node types.
const (
	TypeStreamIn            Type = "stream_in"
	TypeStreamOut           Type = "stream_out"
	TypeElectricalBroadband Type = "electrical_broadband"
	TypeOpticalStimulation  Type = "optical_stimulation"
)

// State is a node's lifecycle state. A node only moves forward:
// Created, Configured, Running, Stopped.
type State int32

// Node states.
const (
	StateCreated State = iota
	StateConfigured
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DataType tags what flows through a node's socket.
type DataType string

// Data types.
const (
	DataTypeAny       DataType = "any"
	DataTypeBroadband DataType = "broadband"
	DataTypeImage     DataType = "image"
)

// Socket describes a started node's transport binding. It is used for
// status reporting only. An empty Bind means the node holds no transport.
type Socket struct {
	NodeID      int                 `json:"node_id"`
	Type        Type                `json:"type"`
	DataType    DataType            `json:"data_type"`
	Bind        string              `json:"bind,omitempty"`
	Destination string              `json:"destination,omitempty"`
	Role        transport.Direction `json:"role,omitempty"`
	Transport   transport.Role      `json:"transport,omitempty"`
}

// Emitter receives everything a node emits downstream.
type Emitter func(ctx context.Context, nodeID int, payload any)

// Node is one configurable unit of work on the device.
type Node interface {
	ID() int
	Type() Type
	State() State
	// Spec returns the last configuration the node accepted.
	Spec() Spec

	// Validate checks spec without applying it or touching hardware.
	Validate(spec Spec) error
	// Configure validates and applies spec. It fails with ErrInvalidState
	// while the node is running or after it stopped.
	Configure(ctx context.Context, spec Spec) error
	// Start provisions the node's transport and launches its loop. It
	// returns once the loop goroutine is running.
	Start(ctx context.Context) error
	// Stop cancels the loop, waits for it to exit and releases the
	// transport. Stopping a node that is not running is a no-op.
	Stop() error

	// OnDataReceived hands the node a payload from upstream.
	OnDataReceived(ctx context.Context, payload any) error
	SetEmitter(e Emitter)

	// Describe returns the node's socket, or nil when it holds none.
	Describe() *Socket
	Health() health.Status
}

// Deps holds what node constructors may need. Nil fields fall back to
// defaults where a node can run without them.
type Deps struct {
	Provisioner *transport.Provisioner
	Driver      driver.Driver
	Stimulator  Stimulator
	Metrics     *metric.Metrics
	Logger      *slog.Logger
}
