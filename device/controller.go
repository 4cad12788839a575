package device

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/node"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
)

// Tap receives a copy of every node emission and of the device status after
// each control operation. Implementations must not block.
type Tap interface {
	PublishNode(nodeID int, payload any) error
	PublishStatus(v any) error
}

// Deps holds the controller's collaborators. Provisioner is required.
type Deps struct {
	Registry    *node.Registry
	Provisioner *transport.Provisioner
	Driver      driver.Driver
	Stimulator  node.Stimulator
	Tap         Tap
	Metrics     *metric.Metrics
	Logger      *slog.Logger
}

// Controller owns the device's node set and lifecycle. Control operations
// serialize on one mutex; Info reads an atomically published snapshot and
// never waits on them.
type Controller struct {
	id       Identity
	registry *node.Registry
	nodeDeps node.Deps
	tap      Tap
	metrics  *metric.Metrics
	logger   *slog.Logger
	limiter  *rate.Limiter

	// ctx bounds every node loop; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	started bool
	closed  bool
	config  Configuration
	nodes   []node.Node

	routes   atomic.Pointer[map[int][]node.Node]
	snapshot atomic.Pointer[Snapshot]
}

// NewController creates a controller in the Initializing state.
func NewController(id Identity, deps Deps) (*Controller, error) {
	if deps.Provisioner == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Controller", "New", "provisioner validation")
	}
	if deps.Registry == nil {
		deps.Registry = node.DefaultRegistry()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "device")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:       id,
		registry: deps.Registry,
		nodeDeps: node.Deps{
			Provisioner: deps.Provisioner,
			Driver:      deps.Driver,
			Stimulator:  deps.Stimulator,
			Metrics:     deps.Metrics,
			Logger:      logger,
		},
		tap:     deps.Tap,
		metrics: deps.Metrics,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.routes.Store(&map[int][]node.Node{})
	c.setState(StateInitializing)
	c.publish()
	return c, nil
}

// Info returns the last published snapshot.
func (c *Controller) Info() Snapshot {
	return *c.snapshot.Load()
}

// Status maps an operation result onto a status carrying the current sockets
// and state.
func (c *Controller) Status(err error) Status {
	snap := c.Info()
	st := Status{
		Code:    errors.CodeOf(err),
		Sockets: snap.Sockets,
		State:   snap.State,
	}
	if err != nil {
		st.Message = err.Error()
	}
	return st
}

// Configure validates cfg in full, then replaces the node set: every
// existing node is stopped and discarded and new nodes are created and
// configured in order. A validation failure leaves the device untouched.
func (c *Controller) Configure(ctx context.Context, cfg Configuration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	if c.closed {
		return errors.InvalidStatef("device is closed")
	}
	if err := c.validate(cfg); err != nil {
		c.logger.Warn("Configuration rejected", "error", err)
		return err
	}

	c.teardown()
	c.config = Configuration{}

	if err := c.instantiate(ctx, cfg); err != nil {
		c.setState(StateInitializing)
		c.logger.Error("Configuration failed", "error", err)
		return err
	}
	c.config = cfg
	c.setState(StateConfigured)
	c.logger.Info("Device configured", "nodes", len(cfg.Nodes), "connections", len(cfg.Connections))
	return nil
}

// Start starts every node in configuration order. If one fails, the nodes
// already started are stopped, the node set is rebuilt and the device stays
// Configured. Starting a running device is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	switch {
	case c.closed:
		return errors.InvalidStatef("device is closed")
	case c.state == StateInitializing:
		return errors.InvalidStatef("device is not configured")
	case c.state == StateRunning:
		return nil
	case c.state == StateStopped:
		// Stopped nodes never restart.
		c.teardown()
		if err := c.instantiate(ctx, c.config); err != nil {
			c.setState(StateInitializing)
			return err
		}
		c.setState(StateConfigured)
	}

	for i, n := range c.nodes {
		if err := n.Start(c.ctx); err != nil {
			c.logger.Error("Node failed to start, rolling back", "node_id", n.ID(), "error", err)
			for j := i - 1; j >= 0; j-- {
				c.stopNode(c.nodes[j])
			}
			c.teardown()
			if rerr := c.instantiate(ctx, c.config); rerr != nil {
				c.setState(StateInitializing)
				return errors.Join(err, rerr)
			}
			return errors.Wrap(err, "Controller", "Start", fmt.Sprintf("node %d start", n.ID()))
		}
	}

	c.started = true
	c.setState(StateRunning)
	c.logger.Info("Device started", "nodes", len(c.nodes))
	return nil
}

// Stop stops every node and waits for each loop to exit. Every node is
// attempted even when one fails. It fails only if Start never succeeded and
// is a no-op on a stopped device.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	if !c.started {
		return errors.InvalidStatef("device has not been started")
	}
	if c.state == StateStopped {
		return nil
	}

	var errs []error
	for _, n := range c.nodes {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("Stop context ended, stopping remaining nodes anyway", "error", err)
		}
		if err := n.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", n.ID(), err))
		}
	}
	c.setState(StateStopped)
	c.logger.Info("Device stopped")
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "Controller", "Stop", "node stop")
	}
	return nil
}

// Close stops and discards every node, ends the shared pub/sub context and
// rejects further control operations.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publish()

	if c.closed {
		return nil
	}
	c.closed = true
	c.teardown()
	c.cancel()
	err := c.nodeDeps.Provisioner.Close()
	c.logger.Info("Device closed")
	return err
}

// Health aggregates the health of every node.
func (c *Controller) Health() health.Status {
	c.mu.Lock()
	nodes := slices.Clone(c.nodes)
	c.mu.Unlock()

	statuses := make([]health.Status, 0, len(nodes))
	for _, n := range nodes {
		statuses = append(statuses, n.Health())
	}
	return health.Aggregate("device", statuses)
}

// validate checks a configuration without creating anything.
func (c *Controller) validate(cfg Configuration) error {
	ids := make(map[int]struct{}, len(cfg.Nodes))
	for _, spec := range cfg.Nodes {
		if _, dup := ids[spec.ID]; dup {
			return errors.Invalidf("duplicate node id %d", spec.ID)
		}
		ids[spec.ID] = struct{}{}
		if err := c.registry.Validate(spec, c.nodeDeps); err != nil {
			return err
		}
	}

	seen := make(map[Connection]struct{}, len(cfg.Connections))
	for _, conn := range cfg.Connections {
		if _, ok := ids[conn.Src]; !ok {
			return errors.Invalidf("connection %d -> %d: unknown source node %d", conn.Src, conn.Dst, conn.Src)
		}
		if _, ok := ids[conn.Dst]; !ok {
			return errors.Invalidf("connection %d -> %d: unknown destination node %d", conn.Src, conn.Dst, conn.Dst)
		}
		if conn.Src == conn.Dst {
			return errors.Invalidf("connection %d -> %d: a node cannot feed itself", conn.Src, conn.Dst)
		}
		if _, dup := seen[conn]; dup {
			return errors.Invalidf("connection %d -> %d: duplicate connection", conn.Src, conn.Dst)
		}
		seen[conn] = struct{}{}
	}
	return nil
}

// instantiate creates and configures the node set for cfg and wires its
// routes. On failure nothing is left behind.
func (c *Controller) instantiate(ctx context.Context, cfg Configuration) error {
	nodes := make([]node.Node, 0, len(cfg.Nodes))
	byID := make(map[int]node.Node, len(cfg.Nodes))
	for _, spec := range cfg.Nodes {
		n, err := c.registry.Create(ctx, spec, c.nodeDeps)
		if err != nil {
			return errors.Wrap(err, "Controller", "Configure", fmt.Sprintf("node %d creation", spec.ID))
		}
		n.SetEmitter(c.route)
		nodes = append(nodes, n)
		byID[n.ID()] = n
	}

	routes := make(map[int][]node.Node)
	for _, conn := range cfg.Connections {
		routes[conn.Src] = append(routes[conn.Src], byID[conn.Dst])
	}
	c.nodes = nodes
	c.routes.Store(&routes)
	return nil
}

// teardown stops and discards the current node set.
func (c *Controller) teardown() {
	c.routes.Store(&map[int][]node.Node{})
	for _, n := range c.nodes {
		c.stopNode(n)
	}
	c.nodes = nil
}

func (c *Controller) stopNode(n node.Node) {
	if err := n.Stop(); err != nil {
		c.logger.Warn("Node stop failed", "node_id", n.ID(), "error", err)
	}
}

// route is every node's emitter. It runs on the emitting node's goroutine
// and never takes the controller mutex.
func (c *Controller) route(ctx context.Context, src int, payload any) {
	routes := *c.routes.Load()
	for _, dst := range routes[src] {
		if err := dst.OnDataReceived(ctx, payload); err != nil && c.limiter.Allow() {
			c.logger.Warn("Downstream node rejected payload", "src", src, "dst", dst.ID(), "error", err)
		}
	}
	if c.tap != nil {
		if err := c.tap.PublishNode(src, payload); err != nil && c.limiter.Allow() {
			c.logger.Warn("Tap rejected node payload", "src", src, "error", err)
		}
	}
}

func (c *Controller) setState(s State) {
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordDeviceState(int(s))
	}
}

// publish stores a fresh snapshot and forwards it to the tap. Callers hold mu.
func (c *Controller) publish() {
	snap := &Snapshot{
		Identity:       c.id,
		SynapseVersion: ProtocolVersion,
		State:          c.state,
		Sockets:        make([]node.Socket, 0, len(c.nodes)),
		Peripherals:    c.peripherals(),
		Configuration:  Configuration{Connections: slices.Clone(c.config.Connections)},
	}
	for _, n := range c.nodes {
		if s := n.Describe(); s != nil {
			snap.Sockets = append(snap.Sockets, *s)
		} else {
			snap.Sockets = append(snap.Sockets, node.Socket{NodeID: n.ID(), Type: n.Type()})
		}
		snap.Configuration.Nodes = append(snap.Configuration.Nodes, n.Spec())
	}
	c.snapshot.Store(snap)

	if c.tap != nil {
		if err := c.tap.PublishStatus(snap); err != nil {
			c.logger.Debug("Status publish failed", "error", err)
		}
	}
}

func (c *Controller) peripherals() []driver.Peripheral {
	var out []driver.Peripheral
	if c.nodeDeps.Driver != nil {
		out = append(out, c.nodeDeps.Driver.Peripheral())
	}
	if s := c.nodeDeps.Stimulator; s != nil && s.Peripheral().ID != 0 {
		out = append(out, s.Peripheral())
	}
	return out
}
