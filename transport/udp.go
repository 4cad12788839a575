package transport

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// socketBufferSize is requested for data-plane sockets; kernels may clamp it.
const socketBufferSize = 2 * 1024 * 1024

// Endpoint is a provisioned data-plane socket.
type Endpoint interface {
	// Send writes one datagram or frame to the endpoint's destination.
	Send(b []byte) (int, error)
	// Receive reads one datagram or frame into buf, waiting at most timeout.
	Receive(buf []byte, timeout time.Duration) (int, error)
	// Binding describes the endpoint.
	Binding() Binding
	// Close releases the socket. Safe to call more than once.
	Close() error
}

type udpEndpoint struct {
	conn    *net.UDPConn
	dst     *net.UDPAddr
	binding Binding

	closeOnce sync.Once
	closeErr  error
	release   func()
}

func (e *udpEndpoint) Send(b []byte) (int, error) {
	if e.dst == nil {
		return 0, errors.Transportf(nil, "send on %s endpoint", e.binding.Direction)
	}
	n, err := e.conn.WriteToUDP(b, e.dst)
	if err != nil {
		return n, errors.Transportf(err, "send to %s", e.dst)
	}
	return n, nil
}

func (e *udpEndpoint) Receive(buf []byte, timeout time.Duration) (int, error) {
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, errors.Transportf(err, "set read deadline on %s", e.binding.Bind)
	}
	n, _, err := e.conn.ReadFromUDP(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return 0, errors.ErrTimeout
		}
		return n, errors.Transportf(err, "receive on %s", e.binding.Bind)
	}
	return n, nil
}

func (e *udpEndpoint) Binding() Binding {
	return e.binding
}

func (e *udpEndpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.conn.Close()
		if e.release != nil {
			e.release()
		}
	})
	return e.closeErr
}

func tuneBuffers(conn *net.UDPConn, dir Direction) error {
	if dir == Consumer {
		return conn.SetReadBuffer(socketBufferSize)
	}
	return conn.SetWriteBuffer(socketBufferSize)
}
