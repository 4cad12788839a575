package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/buffer"
)

const (
	pubsubInboxSize    = 1024
	pubsubWriteTimeout = time.Second
	pubsubMaxFrame     = 1 << 20
)

// pubsubContext is shared by every live pub/sub endpoint. It is cancelled
// when the last endpoint releases it.
type pubsubContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
}

type pubsubHub struct {
	logger *slog.Logger

	mu        sync.Mutex
	current   *pubsubContext
	endpoints map[*pubsubEndpoint]struct{}
}

func newPubSubHub(logger *slog.Logger) *pubsubHub {
	return &pubsubHub{logger: logger, endpoints: make(map[*pubsubEndpoint]struct{})}
}

func (h *pubsubHub) acquire(ep *pubsubEndpoint) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.current = &pubsubContext{ctx: ctx, cancel: cancel}
		h.logger.Debug("Pub/sub context created")
	}
	h.current.refs++
	h.endpoints[ep] = struct{}{}
	return h.current.ctx
}

func (h *pubsubHub) release(ep *pubsubEndpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.endpoints[ep]; !ok {
		return
	}
	delete(h.endpoints, ep)
	h.current.refs--
	if h.current.refs == 0 {
		h.current.cancel()
		h.current = nil
		h.logger.Debug("Pub/sub context terminated")
	}
}

func (h *pubsubHub) refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return 0
	}
	return h.current.refs
}

// terminate closes every live endpoint, which releases the context.
func (h *pubsubHub) terminate() {
	h.mu.Lock()
	live := make([]*pubsubEndpoint, 0, len(h.endpoints))
	for ep := range h.endpoints {
		live = append(live, ep)
	}
	h.mu.Unlock()

	for _, ep := range live {
		_ = ep.Close()
	}
}

// pubsubEndpoint is a WebSocket server on loopback. A producer broadcasts
// each Send as a binary frame to every connected subscriber; a consumer
// queues frames sent by connected publishers for Receive.
type pubsubEndpoint struct {
	hub     *pubsubHub
	logger  *slog.Logger
	binding Binding

	ctx      context.Context
	cancel   context.CancelFunc
	ln       net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	wg       sync.WaitGroup

	peersMu sync.Mutex
	peers   map[*websocket.Conn]struct{}
	writeMu sync.Mutex

	inbox   *buffer.Queue[[]byte]
	dropped atomic.Int64

	closeOnce sync.Once
	release   func()
}

func (p *Provisioner) pubsub(opts Options) (Endpoint, error) {
	ln, err := listenRandomPort(opts.PortRange, opts.MaxTries)
	if err != nil {
		return nil, err
	}

	ep := &pubsubEndpoint{
		hub:    p.hub,
		logger: p.logger.With("bind", ln.Addr().String()),
		ln:     ln,
		peers:  make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		binding: Binding{
			Role:      RolePubSub,
			Direction: opts.Direction,
			Bind:      ln.Addr().String(),
		},
		release: p.released(RolePubSub),
	}
	if opts.Direction == Consumer {
		inbox, err := buffer.NewQueue[[]byte](pubsubInboxSize)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
		ep.inbox = inbox
	}

	ep.ctx, ep.cancel = context.WithCancel(p.hub.acquire(ep))

	mux := http.NewServeMux()
	mux.HandleFunc("/", ep.handlePeer)
	ep.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ep.wg.Add(1)
	go func() {
		defer ep.wg.Done()
		if err := ep.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			ep.logger.Error("Pub/sub server failed", "error", err)
		}
	}()

	// The shared context ending closes this endpoint too.
	go func() {
		<-ep.ctx.Done()
		_ = ep.Close()
	}()

	return ep, nil
}

// listenRandomPort binds 127.0.0.1 on a random port from r, trying at most
// tries ports.
func listenRandomPort(r PortRange, tries int) (net.Listener, error) {
	var lastErr error
	span := r.Max - r.Min + 1
	for i := 0; i < tries; i++ {
		port := r.Min + rand.IntN(span)
		ln, err := net.Listen("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, errors.WrapFatal(
		fmt.Errorf("%w: no free port in [%d, %d] after %d tries: %v",
			errors.ErrPortExhausted, r.Min, r.Max, tries, lastErr),
		"Provisioner", "Provision", "bind pubsub endpoint")
}

func (e *pubsubEndpoint) handlePeer(w http.ResponseWriter, r *http.Request) {
	if e.ctx.Err() != nil {
		http.Error(w, "closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Debug("Pub/sub upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(pubsubMaxFrame)

	e.peersMu.Lock()
	if e.ctx.Err() != nil {
		e.peersMu.Unlock()
		_ = conn.Close()
		return
	}
	e.peers[conn] = struct{}{}
	e.wg.Add(1)
	e.peersMu.Unlock()

	defer e.wg.Done()
	defer e.dropPeer(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if e.inbox == nil {
			// Producers ignore anything subscribers send.
			continue
		}
		if err := e.inbox.Put(e.ctx, data, 0); err != nil {
			if e.dropped.Add(1)%1000 == 1 {
				e.logger.Warn("Pub/sub inbox full, dropping frames", "dropped", e.dropped.Load())
			}
		}
	}
}

func (e *pubsubEndpoint) dropPeer(conn *websocket.Conn) {
	e.peersMu.Lock()
	delete(e.peers, conn)
	e.peersMu.Unlock()
	_ = conn.Close()
}

func (e *pubsubEndpoint) Send(b []byte) (int, error) {
	if e.binding.Direction != Producer {
		return 0, errors.Transportf(nil, "send on pubsub consumer %s", e.binding.Bind)
	}
	if e.ctx.Err() != nil {
		return 0, errors.Transportf(net.ErrClosed, "send on %s", e.binding.Bind)
	}

	e.peersMu.Lock()
	peers := make([]*websocket.Conn, 0, len(e.peers))
	for c := range e.peers {
		peers = append(peers, c)
	}
	e.peersMu.Unlock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	var failed []*websocket.Conn
	var lastErr error
	for _, c := range peers {
		_ = c.SetWriteDeadline(time.Now().Add(pubsubWriteTimeout))
		if err := c.WriteMessage(websocket.BinaryMessage, b); err != nil {
			failed = append(failed, c)
			lastErr = err
		}
	}
	for _, c := range failed {
		e.dropPeer(c)
	}
	if len(peers) > 0 && len(failed) == len(peers) {
		return 0, errors.Transportf(lastErr, "broadcast on %s", e.binding.Bind)
	}
	// With no subscribers the frame is discarded, as with any pub socket.
	return len(b), nil
}

func (e *pubsubEndpoint) Receive(buf []byte, timeout time.Duration) (int, error) {
	if e.inbox == nil {
		return 0, errors.Transportf(nil, "receive on pubsub producer %s", e.binding.Bind)
	}
	frame, err := e.inbox.Get(e.ctx, timeout)
	if err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return 0, errors.ErrTimeout
		}
		return 0, errors.Transportf(net.ErrClosed, "receive on %s", e.binding.Bind)
	}
	if len(frame) > len(buf) {
		return 0, errors.Transportf(io.ErrShortBuffer, "receive on %s: %d byte frame exceeds %d byte buffer",
			e.binding.Bind, len(frame), len(buf))
	}
	return copy(buf, frame), nil
}

func (e *pubsubEndpoint) Binding() Binding {
	return e.binding
}

func (e *pubsubEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.peersMu.Lock()
		e.cancel()
		for c := range e.peers {
			_ = c.Close()
		}
		e.peersMu.Unlock()

		err = e.server.Close()
		e.wg.Wait()
		if e.inbox != nil {
			_ = e.inbox.Close()
		}
		e.hub.release(e)
		e.release()
	})
	return err
}

func (e *pubsubEndpoint) peerCount() int {
	e.peersMu.Lock()
	defer e.peersMu.Unlock()
	return len(e.peers)
}
