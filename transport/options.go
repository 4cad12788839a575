package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// Role selects the kind of endpoint.
type Role string

// Endpoint roles.
const (
	RoleUnicast   Role = "unicast"
	RoleMulticast Role = "multicast"
	RolePubSub    Role = "pubsub"
)

// Direction is whether an endpoint sends or receives.
type Direction string

// Endpoint directions.
const (
	Producer Direction = "producer"
	Consumer Direction = "consumer"
)

// Data-plane defaults.
const (
	DefaultBasePort     = 6480
	DefaultMulticastTTL = 3
	DefaultPubSubMin    = 64401
	DefaultPubSubMax    = 64799
	DefaultPubSubTries  = 100
)

// PortRange is an inclusive range of candidate ports.
type PortRange struct {
	Min int
	Max int
}

// Options describes one endpoint. Zero values take the defaults above.
type Options struct {
	Role      Role
	Direction Direction
	// Group is a multicast group as "ip" or "ip:port".
	Group string
	// Port is the unicast consumer bind port; 0 binds an ephemeral port.
	Port int
	// TTL is the multicast hop limit for producers.
	TTL int
	// Host is the unicast consumer bind host or the unicast producer
	// destination host.
	Host string
	// Interface names the network interface for multicast joins and sends.
	// Empty joins on every multicast-capable interface.
	Interface string
	// PortRange and MaxTries bound pub/sub port selection.
	PortRange PortRange
	MaxTries  int
}

// Validate checks the options without touching the network.
func (o Options) Validate() error {
	switch o.Direction {
	case Producer, Consumer:
	default:
		return errors.Invalidf("transport direction %q must be one of [%s %s]", o.Direction, Producer, Consumer)
	}

	switch o.Role {
	case RoleUnicast:
		if o.Port < 0 || o.Port > 65535 {
			return errors.Invalidf("port %d out of range [0, 65535]", o.Port)
		}
	case RoleMulticast:
		if _, _, err := ParseGroup(o.Group); err != nil {
			return err
		}
		if o.TTL < 0 || o.TTL > 255 {
			return errors.Invalidf("multicast ttl %d out of range [0, 255]", o.TTL)
		}
	case RolePubSub:
		r := o.PortRange
		if r != (PortRange{}) && (r.Min < 1 || r.Max > 65535 || r.Min > r.Max) {
			return errors.Invalidf("pubsub port range [%d, %d] is invalid", r.Min, r.Max)
		}
		if o.MaxTries < 0 {
			return errors.Invalidf("pubsub max tries %d must not be negative", o.MaxTries)
		}
	default:
		return errors.Invalidf("transport role %q must be one of [%s %s %s]",
			o.Role, RoleUnicast, RoleMulticast, RolePubSub)
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.TTL == 0 {
		o.TTL = DefaultMulticastTTL
	}
	if o.PortRange == (PortRange{}) {
		o.PortRange = PortRange{Min: DefaultPubSubMin, Max: DefaultPubSubMax}
	}
	if o.MaxTries == 0 {
		o.MaxTries = DefaultPubSubTries
	}
	return o
}

// ParseGroup parses a multicast group given as "ip" or "ip:port". The port
// is 0 when absent.
func ParseGroup(s string) (net.IP, int, error) {
	if s == "" {
		return nil, 0, errors.Invalidf("multicast group is empty")
	}

	host, port := s, 0
	if strings.Contains(s, ":") {
		h, p, err := net.SplitHostPort(s)
		if err != nil {
			return nil, 0, errors.Invalidf("multicast group %q is not ip or ip:port", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > 65535 {
			return nil, 0, errors.Invalidf("multicast group %q has invalid port, want [1, 65535]", s)
		}
		host, port = h, n
	}

	ip := net.ParseIP(host).To4()
	if ip == nil || !ip.IsMulticast() {
		return nil, 0, errors.Invalidf("multicast group %q is not an IPv4 multicast address (224.0.0.0/4)", s)
	}
	return ip, port, nil
}

// Binding is the read-only description of a provisioned endpoint.
type Binding struct {
	Role        Role      `json:"role"`
	Direction   Direction `json:"direction"`
	Bind        string    `json:"bind"`
	Destination string    `json:"destination,omitempty"`
	Group       string    `json:"group,omitempty"`
}

func (b Binding) String() string {
	s := fmt.Sprintf("%s/%s bind=%s", b.Role, b.Direction, b.Bind)
	if b.Destination != "" {
		s += " dst=" + b.Destination
	}
	return s
}
