package node

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// streamOptions maps a stream node's transport fields onto provisioner
// options.
func streamOptions(dir transport.Direction, transportName, group string, port int) (transport.Options, error) {
	if transportName == TransportPubSub {
		return transport.Options{Role: transport.RolePubSub, Direction: dir}, nil
	}
	if group == "" {
		opts := transport.Options{Role: transport.RoleUnicast, Direction: dir}
		if dir == transport.Consumer {
			opts.Port = port
		}
		return opts, nil
	}

	ip, groupPort, err := transport.ParseGroup(group)
	if err != nil {
		return transport.Options{}, err
	}
	if groupPort == 0 && port > 0 {
		group = net.JoinHostPort(ip.String(), strconv.Itoa(port))
	}
	return transport.Options{Role: transport.RoleMulticast, Direction: dir, Group: group}, nil
}

func (b *base) provision(ctx context.Context, p *transport.Provisioner, opts transport.Options, dataType DataType) (transport.Endpoint, error) {
	ep, binding, err := p.Provision(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, b.name(), "Start", "transport provisioning")
	}

	bind := binding.Bind
	if binding.Direction == transport.Consumer && binding.Group != "" {
		bind = binding.Group
	}
	b.socket.Store(&Socket{
		NodeID:      b.id,
		Type:        b.typ,
		DataType:    dataType,
		Bind:        bind,
		Destination: binding.Destination,
		Role:        binding.Direction,
		Transport:   binding.Role,
	})
	b.logger.Info("Transport provisioned", "binding", binding.String())
	return ep, nil
}

func missingDep(component, dep string) error {
	return errors.WrapInvalid(errors.ErrMissingConfig, component, "New", dep+" validation")
}

func typeError(payload any) error {
	return fmt.Errorf("payload type %T", payload)
}
