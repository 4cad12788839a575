package device

import (
	"fmt"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/node"
)

// ProtocolVersion is the synapse control protocol version this server speaks.
const ProtocolVersion = "1.0.0"

// State is the device lifecycle state.
type State int32

// Device states.
const (
	StateInitializing State = iota
	StateConfigured
	StateRunning
	StateStopped
)

var stateNames = map[State]string{
	StateInitializing: "initializing",
	StateConfigured:   "configured",
	StateRunning:      "running",
	StateStopped:      "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return errors.Invalidf("unknown device state %q", string(b))
}

// Connection routes a source node's emissions into a destination node.
type Connection struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

// Configuration is the complete node set of the device. Applying one
// replaces the previous set.
type Configuration struct {
	Nodes       []node.Spec  `json:"nodes"`
	Connections []Connection `json:"connections,omitempty"`
}

// Identity names the device.
type Identity struct {
	Name            string `json:"name"`
	Serial          string `json:"serial"`
	FirmwareVersion string `json:"firmware_version"`
}

// Snapshot is the device state reported by Info.
type Snapshot struct {
	Identity
	SynapseVersion string              `json:"synapse_version"`
	State          State               `json:"state"`
	Sockets        []node.Socket       `json:"sockets"`
	Peripherals    []driver.Peripheral `json:"peripherals"`
	Configuration  Configuration       `json:"configuration"`
}

// Status is the result of a control operation.
type Status struct {
	Code    errors.Code   `json:"code"`
	Message string        `json:"message,omitempty"`
	Sockets []node.Socket `json:"sockets"`
	State   State         `json:"state"`
}

// OK reports whether the status carries CodeOK.
func (s Status) OK() bool {
	return s.Code == errors.CodeOK
}
