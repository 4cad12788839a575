package transport

import (
	"context"
	"net"
	"strconv"

	"golang.org/x/net/ipv4"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

func (p *Provisioner) multicastConsumer(ctx context.Context, opts Options) (Endpoint, error) {
	group, port, err := ParseGroup(opts.Group)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: reuseControl}
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(port))
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, errors.Transportf(err, "bind multicast consumer %s", addr)
	}
	conn := pc.(*net.UDPConn)

	ifaces, err := multicastInterfaces(opts.Interface)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	pconn := ipv4.NewPacketConn(conn)
	joined := 0
	var lastErr error
	for i := range ifaces {
		if err := pconn.JoinGroup(&ifaces[i], &net.UDPAddr{IP: group}); err != nil {
			lastErr = err
			p.logger.Debug("Multicast join failed", "group", group, "interface", ifaces[i].Name, "error", err)
			continue
		}
		joined++
	}
	if joined == 0 && opts.Interface != "" {
		_ = conn.Close()
		return nil, errors.Transportf(lastErr, "join multicast group %s on %s", group, opts.Interface)
	}
	if joined == 0 {
		// Let the kernel pick the interface from the routing table.
		if err := pconn.JoinGroup(nil, &net.UDPAddr{IP: group}); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			_ = conn.Close()
			return nil, errors.Transportf(lastErr, "join multicast group %s", group)
		}
	}

	if err := tuneBuffers(conn, Consumer); err != nil {
		p.logger.Warn("Could not set UDP buffer size", "group", opts.Group, "error", err)
	}

	local := conn.LocalAddr().(*net.UDPAddr)
	return &udpEndpoint{
		conn: conn,
		binding: Binding{
			Role:      RoleMulticast,
			Direction: Consumer,
			Bind:      local.String(),
			Group:     groupAddr(group, local.Port),
		},
		release: p.released(RoleMulticast),
	}, nil
}

func (p *Provisioner) multicastProducer(ctx context.Context, opts Options) (Endpoint, error) {
	group, port, err := ParseGroup(opts.Group)
	if err != nil {
		return nil, err
	}
	if port == 0 {
		port = p.cfg.BasePort
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return nil, errors.Transportf(err, "bind multicast producer")
	}
	conn := pc.(*net.UDPConn)

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(opts.TTL); err != nil {
		_ = conn.Close()
		return nil, errors.Transportf(err, "set multicast ttl %d", opts.TTL)
	}
	if err := pconn.SetMulticastLoopback(true); err != nil {
		p.logger.Warn("Could not enable multicast loopback", "error", err)
	}
	if opts.Interface != "" {
		ifi, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			_ = conn.Close()
			return nil, errors.Transportf(err, "lookup interface %s", opts.Interface)
		}
		if err := pconn.SetMulticastInterface(ifi); err != nil {
			_ = conn.Close()
			return nil, errors.Transportf(err, "set multicast interface %s", opts.Interface)
		}
	}
	if err := tuneBuffers(conn, Producer); err != nil {
		p.logger.Warn("Could not set UDP buffer size", "group", opts.Group, "error", err)
	}

	dst := &net.UDPAddr{IP: group, Port: port}
	return &udpEndpoint{
		conn: conn,
		dst:  dst,
		binding: Binding{
			Role:        RoleMulticast,
			Direction:   Producer,
			Bind:        conn.LocalAddr().String(),
			Destination: dst.String(),
			Group:       dst.String(),
		},
		release: p.released(RoleMulticast),
	}, nil
}

// multicastInterfaces returns the named interface, or every interface that
// is up and multicast-capable when name is empty.
func multicastInterfaces(name string) ([]net.Interface, error) {
	if name != "" {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return nil, errors.Transportf(err, "lookup interface %s", name)
		}
		return []net.Interface{*ifi}, nil
	}

	all, err := net.Interfaces()
	if err != nil {
		return nil, errors.Transportf(err, "list interfaces")
	}
	out := all[:0]
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			out = append(out, ifi)
		}
	}
	return out, nil
}
