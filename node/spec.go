package node

import (
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// Stream transports.
const (
	TransportUDP    = "udp"
	TransportPubSub = "pubsub"
)

// Spec configures one node. Exactly the sub-message matching Type may be set.
type Spec struct {
	ID   int  `json:"id"`
	Type Type `json:"type"`

	StreamIn            *StreamInSpec            `json:"stream_in,omitempty"`
	StreamOut           *StreamOutSpec           `json:"stream_out,omitempty"`
	ElectricalBroadband *ElectricalBroadbandSpec `json:"electrical_broadband,omitempty"`
	OpticalStimulation  *OpticalStimulationSpec  `json:"optical_stimulation,omitempty"`
}

// StreamInSpec configures an inbound stream.
type StreamInSpec struct {
	// MulticastGroup selects multicast UDP when set ("ip" or "ip:port").
	MulticastGroup string `json:"multicast_group,omitempty"`
	// Transport is "udp" (default) or "pubsub".
	Transport string `json:"transport,omitempty"`
	// Port is the bind port, or the group port when MulticastGroup has none.
	// 0 binds an ephemeral port.
	Port int `json:"port,omitempty"`
	// Decode turns inbound datagrams into records before emitting them.
	Decode bool `json:"decode,omitempty"`
	// BitWidth selects the decode packing; 0 infers it.
	BitWidth int `json:"bit_width,omitempty"`
}

// StreamOutSpec configures an outbound stream.
type StreamOutSpec struct {
	MulticastGroup string `json:"multicast_group,omitempty"`
	Transport      string `json:"transport,omitempty"`
	// Port is the group port when MulticastGroup has none.
	Port int `json:"port,omitempty"`
	// QueueSize bounds the outbound queue; 0 means DefaultQueueSize.
	QueueSize int `json:"queue_size,omitempty"`
}

// ElectricalBroadbandSpec configures broadband acquisition from a peripheral.
type ElectricalBroadbandSpec struct {
	PeripheralID uint32    `json:"peripheral_id"`
	SampleRate   int       `json:"sample_rate"`
	BitWidth     int       `json:"bit_width"`
	Gain         float64   `json:"gain,omitempty"`
	Channels     []Channel `json:"channels"`
}

// Channel selects one 0-based acquisition channel.
type Channel struct {
	ID          int `json:"id"`
	ElectrodeID int `json:"electrode_id,omitempty"`
	ReferenceID int `json:"reference_id,omitempty"`
}

// OpticalStimulationSpec configures the stimulation frame stream.
type OpticalStimulationSpec struct {
	PeripheralID uint32 `json:"peripheral_id,omitempty"`
	FrameRate    int    `json:"frame_rate"`
	BitWidth     int    `json:"bit_width"`
	QueueSize    int    `json:"queue_size,omitempty"`
}

// check validates the fields every node shares and that no other variant's
// sub-message is set.
func (s Spec) check(t Type) error {
	if s.ID < 0 {
		return errors.Invalidf("node id %d must be >= 0", s.ID)
	}
	if s.Type != t {
		return errors.Invalidf("node %d: type %q does not match %q", s.ID, s.Type, t)
	}
	// Checked in declaration order so the first foreign sub-message is the
	// one reported.
	subs := []struct {
		typ Type
		set bool
	}{
		{TypeStreamIn, s.StreamIn != nil},
		{TypeStreamOut, s.StreamOut != nil},
		{TypeElectricalBroadband, s.ElectricalBroadband != nil},
		{TypeOpticalStimulation, s.OpticalStimulation != nil},
	}
	for _, sub := range subs {
		if sub.set && sub.typ != t {
			return errors.Invalidf("node %d: %s config given for a %s node", s.ID, sub.typ, t)
		}
	}
	return nil
}

func checkStreamTransport(id int, name, group string, port int) error {
	switch name {
	case "", TransportUDP:
	case TransportPubSub:
		if group != "" {
			return errors.Invalidf("node %d: multicast_group cannot be used with transport %q", id, TransportPubSub)
		}
	default:
		return errors.Invalidf("node %d: transport %q must be one of [%s %s]", id, name, TransportUDP, TransportPubSub)
	}
	if port < 0 || port > 65535 {
		return errors.Invalidf("node %d: port %d out of range [0, 65535]", id, port)
	}
	return nil
}
