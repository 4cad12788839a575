package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
)

// Loop timing shared by every variant.
const (
	// pollTimeout bounds every blocking call a loop makes so cancellation
	// is observed within one interval.
	pollTimeout = time.Second
	// DefaultQueueSize is the capacity of node-owned queues.
	DefaultQueueSize = 1024
)

// base carries the identity, lifecycle and bookkeeping every variant shares.
// lifeMu serializes Configure, Start and Stop. The loop goroutine never takes
// it, so Stop may hold it while joining.
type base struct {
	id  int
	typ Type

	logger  *slog.Logger
	errlog  *rateLogger
	metrics *metric.NodeMetrics
	tracker *health.Tracker

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	state   atomic.Int32
	spec    atomic.Pointer[Spec]
	socket  atomic.Pointer[Socket]
	emitter atomic.Pointer[Emitter]
}

func newBase(id int, typ Type, deps Deps) *base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "node")
	}
	logger = logger.With("node_id", id, "node_type", string(typ))

	b := &base{
		id:      id,
		typ:     typ,
		logger:  logger,
		errlog:  newRateLogger(logger, 5*time.Second),
		tracker: health.NewTracker(),
	}
	if deps.Metrics != nil {
		b.metrics = deps.Metrics.NodeMetrics(id, string(typ))
	}
	b.spec.Store(&Spec{ID: id, Type: typ})
	b.setState(StateCreated)
	return b
}

// ID returns the node id.
func (b *base) ID() int { return b.id }

// Type returns the node type.
func (b *base) Type() Type { return b.typ }

// State returns the current lifecycle state.
func (b *base) State() State { return State(b.state.Load()) }

func (b *base) setState(s State) {
	b.state.Store(int32(s))
	b.metrics.SetState(int(s))
}

// Spec returns the last accepted configuration.
func (b *base) Spec() Spec { return *b.spec.Load() }

// SetEmitter sets the downstream sink. A nil emitter discards emissions.
func (b *base) SetEmitter(e Emitter) {
	if e == nil {
		b.emitter.Store(nil)
		return
	}
	b.emitter.Store(&e)
}

func (b *base) emit(ctx context.Context, payload any) {
	if e := b.emitter.Load(); e != nil {
		(*e)(ctx, b.id, payload)
	}
}

// Describe returns a copy of the node's socket, or nil.
func (b *base) Describe() *Socket {
	s := b.socket.Load()
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Health reports the node's loop health.
func (b *base) Health() health.Status {
	return health.FromReport(b.name(), b.tracker.Report())
}

func (b *base) name() string {
	return fmt.Sprintf("%s-%d", b.typ, b.id)
}

// configure applies spec when the node is not running. validate must be
// pure; apply may touch hardware and leaves the previous spec in place when
// it fails.
func (b *base) configure(spec Spec, validate func(Spec) error, apply func(Spec) error) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	switch st := b.State(); st {
	case StateRunning, StateStopped:
		return errors.InvalidStatef("node %d cannot be configured while %s", b.id, st)
	}
	if err := validate(spec); err != nil {
		return err
	}
	if apply != nil {
		if err := apply(spec); err != nil {
			b.tracker.Error(err)
			return err
		}
	}

	b.spec.Store(&spec)
	b.setState(StateConfigured)
	b.logger.Debug("Node configured")
	return nil
}

// run moves a configured node to running. setup acquires resources; loop
// runs on its own goroutine until its context ends.
func (b *base) run(ctx context.Context, setup func(ctx context.Context) error, loop func(ctx context.Context)) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if st := b.State(); st != StateConfigured {
		return errors.InvalidStatef("node %d cannot start while %s", b.id, st)
	}
	if setup != nil {
		if err := setup(ctx); err != nil {
			b.tracker.Error(err)
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		close(started)
		loop(runCtx)
	}()
	<-started

	b.cancel, b.done = cancel, done
	b.tracker.Started()
	b.setState(StateRunning)
	b.logger.Info("Node started")
	return nil
}

// halt stops a running node: cancel, join, then teardown. It is a no-op in
// any other state.
func (b *base) halt(teardown func() error) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()

	if b.State() != StateRunning {
		return nil
	}
	b.cancel()
	<-b.done
	b.cancel, b.done = nil, nil

	var err error
	if teardown != nil {
		err = teardown()
	}
	b.socket.Store(nil)
	b.tracker.Stopped()
	b.setState(StateStopped)
	b.logger.Info("Node stopped")
	return err
}

// loopError records a steady-state loop failure without ending the loop.
func (b *base) loopError(kind string, err error, msg string, args ...any) {
	b.tracker.Error(err)
	b.metrics.Error(kind)
	b.errlog.Warn(msg, append(args, "error", err)...)
}

// rateLogger drops repeated warnings from a hot loop and reports how many
// were suppressed with the next one it lets through.
type rateLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func newRateLogger(logger *slog.Logger, every time.Duration) *rateLogger {
	return &rateLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), 1),
	}
}

// Warn logs at warn level if the limiter allows it.
func (r *rateLogger) Warn(msg string, args ...any) {
	if !r.limiter.Allow() {
		r.suppressed.Add(1)
		return
	}
	if n := r.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed", n)
	}
	r.logger.Warn(msg, args...)
}
