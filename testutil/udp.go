package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// UDPSink is a loopback UDP listener that stands in for a data-plane
// consumer.
type UDPSink struct {
	t    *testing.T
	conn *net.UDPConn
}

// NewUDPSink binds an ephemeral loopback port, closed at test cleanup.
func NewUDPSink(t *testing.T) *UDPSink {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &UDPSink{t: t, conn: conn}
}

// Port returns the bound port.
func (s *UDPSink) Port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

// Read returns the next datagram, failing the test after timeout.
func (s *UDPSink) Read(timeout time.Duration) []byte {
	s.t.Helper()
	buf := make([]byte, 65536)
	require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(timeout)))
	n, _, err := s.conn.ReadFromUDP(buf)
	require.NoError(s.t, err)
	return buf[:n]
}

// SendUDP writes payload to 127.0.0.1:port.
func SendUDP(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}
