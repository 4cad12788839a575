package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// Config holds process-wide provisioner settings.
type Config struct {
	// DataHost is the unicast producer destination host and the default
	// unicast consumer bind host.
	DataHost string
	// BasePort is the first unicast producer destination port.
	BasePort int
	// Interface is the default multicast interface.
	Interface string
}

// Provisioner allocates endpoints. It is safe for concurrent use.
type Provisioner struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Metrics

	mu      sync.Mutex
	offsets map[int]struct{}

	hub *pubsubHub
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the provisioner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		if logger != nil {
			p.logger = logger.With("component", "transport")
		}
	}
}

// WithMetrics counts live endpoints per role.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(p *Provisioner) {
		if registry != nil {
			p.metrics = registry.CoreMetrics()
		}
	}
}

// NewProvisioner creates a provisioner. An empty DataHost means 127.0.0.1
// and a zero BasePort means DefaultBasePort.
func NewProvisioner(cfg Config, opts ...Option) *Provisioner {
	if cfg.DataHost == "" {
		cfg.DataHost = "127.0.0.1"
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = DefaultBasePort
	}
	p := &Provisioner{
		cfg:     cfg,
		logger:  slog.Default().With("component", "transport"),
		offsets: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.hub = newPubSubHub(p.logger)
	return p
}

// Provision allocates an endpoint described by opts.
func (p *Provisioner) Provision(ctx context.Context, opts Options) (Endpoint, Binding, error) {
	if err := opts.Validate(); err != nil {
		return nil, Binding{}, err
	}
	opts = opts.withDefaults()
	if opts.Interface == "" {
		opts.Interface = p.cfg.Interface
	}

	var (
		ep  Endpoint
		err error
	)
	switch opts.Role {
	case RoleUnicast:
		if opts.Direction == Consumer {
			ep, err = p.unicastConsumer(ctx, opts)
		} else {
			ep, err = p.unicastProducer(ctx, opts)
		}
	case RoleMulticast:
		if opts.Direction == Consumer {
			ep, err = p.multicastConsumer(ctx, opts)
		} else {
			ep, err = p.multicastProducer(ctx, opts)
		}
	case RolePubSub:
		ep, err = p.pubsub(opts)
	}
	if err != nil {
		return nil, Binding{}, err
	}

	if p.metrics != nil {
		p.metrics.RecordEndpoint(string(opts.Role), 1)
	}
	b := ep.Binding()
	p.logger.Debug("Endpoint provisioned", "binding", b.String())
	return ep, b, nil
}

// PubSubRefs returns the number of live endpoints sharing the pub/sub context.
func (p *Provisioner) PubSubRefs() int {
	return p.hub.refs()
}

// LiveOffsets returns the number of unicast producer offsets in use.
func (p *Provisioner) LiveOffsets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.offsets)
}

// Close terminates the shared pub/sub context. Endpoints still open are
// closed with it.
func (p *Provisioner) Close() error {
	p.hub.terminate()
	return nil
}

func (p *Provisioner) released(role Role) func() {
	return func() {
		if p.metrics != nil {
			p.metrics.RecordEndpoint(string(role), -1)
		}
	}
}

func (p *Provisioner) unicastConsumer(ctx context.Context, opts Options) (Endpoint, error) {
	host := opts.Host
	if host == "" {
		host = "0.0.0.0"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(opts.Port))

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, errors.Transportf(err, "bind unicast consumer %s", addr)
	}
	conn := pc.(*net.UDPConn)
	if err := tuneBuffers(conn, Consumer); err != nil {
		p.logger.Warn("Could not set UDP buffer size", "addr", addr, "error", err)
	}

	return &udpEndpoint{
		conn: conn,
		binding: Binding{
			Role:      RoleUnicast,
			Direction: Consumer,
			Bind:      conn.LocalAddr().String(),
		},
		release: p.released(RoleUnicast),
	}, nil
}

func (p *Provisioner) unicastProducer(ctx context.Context, opts Options) (Endpoint, error) {
	host := opts.Host
	if host == "" {
		host = p.cfg.DataHost
	}

	offset := p.acquireOffset()
	dstAddr := net.JoinHostPort(host, strconv.Itoa(p.cfg.BasePort+offset))
	dst, err := net.ResolveUDPAddr("udp4", dstAddr)
	if err != nil {
		p.releaseOffset(offset)
		return nil, errors.Transportf(err, "resolve unicast destination %s", dstAddr)
	}

	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		p.releaseOffset(offset)
		return nil, errors.Transportf(err, "bind unicast producer")
	}
	conn := pc.(*net.UDPConn)
	if err := tuneBuffers(conn, Producer); err != nil {
		p.logger.Warn("Could not set UDP buffer size", "error", err)
	}

	release := p.released(RoleUnicast)
	return &udpEndpoint{
		conn: conn,
		dst:  dst,
		binding: Binding{
			Role:        RoleUnicast,
			Direction:   Producer,
			Bind:        conn.LocalAddr().String(),
			Destination: dst.String(),
		},
		release: func() {
			p.releaseOffset(offset)
			release()
		},
	}, nil
}

// acquireOffset returns the lowest free unicast producer slot.
func (p *Provisioner) acquireOffset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; ; i++ {
		if _, used := p.offsets[i]; !used {
			p.offsets[i] = struct{}{}
			return i
		}
	}
}

func (p *Provisioner) releaseOffset(offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.offsets, offset)
}

func groupAddr(ip net.IP, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}
