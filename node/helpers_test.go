package node

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// sink collects emitted payloads.
type sink struct {
	ch chan any
}

func newSink() *sink {
	return &sink{ch: make(chan any, 256)}
}

func (s *sink) emit(_ context.Context, _ int, payload any) {
	select {
	case s.ch <- payload:
	default:
	}
}

func (s *sink) next(t *testing.T, timeout time.Duration) any {
	t.Helper()
	select {
	case v := <-s.ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no payload within %v", timeout)
		return nil
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	p := transport.NewProvisioner(transport.Config{DataHost: "127.0.0.1"})
	t.Cleanup(func() { _ = p.Close() })
	return Deps{
		Provisioner: p,
		Metrics:     metric.NewMetricsRegistry().CoreMetrics(),
	}
}

// listen binds a loopback UDP consumer for a producer to target.
func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *net.UDPConn, timeout time.Duration) []byte {
	t.Helper()
	buf := make([]byte, 65536)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func sendTo(t *testing.T, bind string, payload []byte) {
	t.Helper()
	_, port, err := net.SplitHostPort(bind)
	require.NoError(t, err)
	conn, err := net.Dial("udp4", net.JoinHostPort("127.0.0.1", port))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}
