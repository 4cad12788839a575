package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/worker"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

// Publisher is the NATS surface the relay needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Message is one queued publish.
type Message struct {
	NodeID  int // -1 for device status
	Subject string
	Data    []byte
}

// Config tunes the relay worker pool.
type Config struct {
	Workers   int
	QueueSize int
	// PublishTimeout bounds a single publish.
	PublishTimeout time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{Workers: 2, QueueSize: 4096, PublishTimeout: 2 * time.Second}
}

// Deps holds the relay's collaborators.
type Deps struct {
	Publisher Publisher
	Serial    string
	Logger    *slog.Logger
	Registry  *metric.MetricsRegistry
}

// Relay publishes node emissions and device status to NATS off the node
// data path. Emissions are queued without blocking; when the queue is full
// they are dropped and counted.
type Relay struct {
	pub     Publisher
	prefix  string
	cfg     Config
	pool    *worker.Pool[Message]
	logger  *slog.Logger
	metrics *metric.Metrics
	limiter *rate.Limiter
}

// New creates a relay. Start must be called before publishing.
func New(cfg Config, deps Deps) (*Relay, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Relay", "New", "check publisher")
	}
	if deps.Serial == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Relay", "New", "check serial")
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Relay{
		pub:     deps.Publisher,
		prefix:  "synapse." + subjectToken(deps.Serial),
		cfg:     cfg,
		logger:  logger.With("component", "relay"),
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	var opts []worker.Option[Message]
	if deps.Registry != nil {
		r.metrics = deps.Registry.CoreMetrics()
		opts = append(opts, worker.WithMetricsRegistry[Message](deps.Registry, "relay"))
	}
	r.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, r.publish, opts...)
	return r, nil
}

// NodeSubject returns the subject a node's emissions are published on.
func (r *Relay) NodeSubject(nodeID int) string {
	return r.prefix + ".node." + strconv.Itoa(nodeID)
}

// StatusSubject returns the device status subject.
func (r *Relay) StatusSubject() string {
	return r.prefix + ".status"
}

// Start launches the publish workers.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Relay", "Start", "start worker pool")
	}
	r.logger.Info("NATS relay started", "subject_prefix", r.prefix, "workers", r.cfg.Workers)
	return nil
}

// Stop waits up to timeout for queued publishes to drain.
func (r *Relay) Stop(timeout time.Duration) error {
	if err := r.pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "Relay", "Stop", "drain worker pool")
	}
	return nil
}

// PublishNode queues a node emission. Records are encoded with the wire
// codec and byte payloads pass through; anything else is rejected.
func (r *Relay) PublishNode(nodeID int, payload any) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	return r.submit(Message{NodeID: nodeID, Subject: r.NodeSubject(nodeID), Data: data})
}

// PublishStatus queues a JSON snapshot of v on the status subject.
func (r *Relay) PublishStatus(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapInvalid(err, "Relay", "PublishStatus", "marshal status")
	}
	return r.submit(Message{NodeID: -1, Subject: r.StatusSubject(), Data: data})
}

// Stats returns the worker pool statistics.
func (r *Relay) Stats() worker.PoolStats {
	return r.pool.Stats()
}

func (r *Relay) submit(msg Message) error {
	if err := r.pool.Submit(msg); err != nil {
		if errors.Is(err, errors.ErrQueueFull) && r.limiter.Allow() {
			r.logger.Warn("NATS relay queue full, dropping", "subject", msg.Subject)
		}
		return err
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
	defer cancel()

	err := r.pub.Publish(ctx, msg.Subject, msg.Data)
	if r.metrics != nil && msg.NodeID >= 0 {
		r.metrics.RecordRelayPublish(msg.NodeID, err == nil)
	}
	if err != nil && r.limiter.Allow() {
		r.logger.Warn("NATS publish failed", "subject", msg.Subject, "error", err)
	}
	return err
}

func encodePayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		out := make([]byte, len(p))
		copy(out, p)
		return out, nil
	case wire.Record:
		return wire.Encode(p)
	case *wire.Record:
		if p == nil {
			return nil, fmt.Errorf("relay: nil record: %w", errors.ErrUnsupportedDataType)
		}
		return wire.Encode(*p)
	default:
		return nil, fmt.Errorf("relay: %T: %w", payload, errors.ErrUnsupportedDataType)
	}
}

// subjectToken makes s safe as a single NATS subject token.
func subjectToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
