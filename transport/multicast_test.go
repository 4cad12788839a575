package transport

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// provisionMulticastConsumer skips the test on hosts without a usable
// multicast interface.
func provisionMulticastConsumer(t *testing.T, p *Provisioner, group string) (Endpoint, Binding) {
	t.Helper()
	ep, b, err := p.Provision(context.Background(), Options{Role: RoleMulticast, Direction: Consumer, Group: group})
	if err != nil && errors.Is(err, errors.ErrTransport) {
		t.Skipf("multicast unavailable on this host: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = ep.Close() })
	return ep, b
}

func TestMulticast_ProducersGetDistinctBinds(t *testing.T) {
	p := NewProvisioner(Config{})
	seen := map[string]bool{}

	for i := 0; i < 3; i++ {
		ep, b, err := p.Provision(context.Background(), Options{
			Role:      RoleMulticast,
			Direction: Producer,
			Group:     "239.0.0.115:6473",
		})
		require.NoError(t, err)
		defer ep.Close()

		assert.False(t, seen[b.Bind], "bind %s reused", b.Bind)
		seen[b.Bind] = true
		assert.Equal(t, "239.0.0.115:6473", b.Destination)
	}
	assert.Len(t, seen, 3)
}

func TestMulticast_ProducerDefaultsToBasePort(t *testing.T) {
	p := NewProvisioner(Config{BasePort: 7000})
	ep, b, err := p.Provision(context.Background(), Options{Role: RoleMulticast, Direction: Producer, Group: "239.0.0.1"})
	require.NoError(t, err)
	defer ep.Close()
	assert.Equal(t, "239.0.0.1:7000", b.Destination)
}

func TestMulticast_ConsumerReceivesOnGroupPort(t *testing.T) {
	p := NewProvisioner(Config{})
	in, b := provisionMulticastConsumer(t, p, "239.0.0.115")
	assert.Equal(t, RoleMulticast, b.Role)

	port := udpPort(t, b.Bind)
	conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := in.Receive(buf, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf[:n])
}

func TestMulticast_ConsumersShareGroupPort(t *testing.T) {
	p := NewProvisioner(Config{})
	_, first := provisionMulticastConsumer(t, p, "239.0.0.116")
	port := udpPort(t, first.Bind)

	group := "239.0.0.116:" + strconv.Itoa(port)
	_, second := provisionMulticastConsumer(t, p, group)
	assert.Equal(t, port, udpPort(t, second.Bind))
}
