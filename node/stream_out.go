package node

import (
	"context"
	"sync"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/buffer"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

// StreamOut encodes queued payloads and sends them to its destination.
// Records are encoded with the wire codec; byte slices are sent as is.
type StreamOut struct {
	*base
	provisioner *transport.Provisioner

	mu    sync.Mutex
	queue *buffer.Queue[any]
	ep    transport.Endpoint
}

var _ Node = (*StreamOut)(nil)

// NewStreamOut creates an unconfigured StreamOut.
func NewStreamOut(id int, deps Deps) (Node, error) {
	if deps.Provisioner == nil {
		return nil, missingDep("StreamOut", "provisioner")
	}
	return &StreamOut{
		base:        newBase(id, TypeStreamOut, deps),
		provisioner: deps.Provisioner,
	}, nil
}

// Validate implements Node.
func (s *StreamOut) Validate(spec Spec) error {
	if err := spec.check(TypeStreamOut); err != nil {
		return err
	}
	cfg := spec.StreamOut
	if cfg == nil {
		return nil
	}
	if err := checkStreamTransport(spec.ID, cfg.Transport, cfg.MulticastGroup, cfg.Port); err != nil {
		return err
	}
	if cfg.MulticastGroup != "" {
		if _, _, err := transport.ParseGroup(cfg.MulticastGroup); err != nil {
			return err
		}
	}
	if cfg.QueueSize < 0 {
		return errors.Invalidf("node %d: queue_size %d must be >= 0", spec.ID, cfg.QueueSize)
	}
	return nil
}

// Configure implements Node. The queue is sized here so payloads arriving
// before Start are kept.
func (s *StreamOut) Configure(_ context.Context, spec Spec) error {
	return s.configure(spec, s.Validate, func(spec Spec) error {
		size := DefaultQueueSize
		if spec.StreamOut != nil && spec.StreamOut.QueueSize > 0 {
			size = spec.StreamOut.QueueSize
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.queue != nil && s.queue.Capacity() == size {
			return nil
		}
		q, err := buffer.NewQueue[any](size)
		if err != nil {
			return err
		}
		if s.queue != nil {
			_ = s.queue.Close()
		}
		s.queue = q
		return nil
	})
}

// Start implements Node.
func (s *StreamOut) Start(ctx context.Context) error {
	return s.run(ctx, s.open, s.loop)
}

func (s *StreamOut) open(ctx context.Context) error {
	var cfg StreamOutSpec
	if c := s.Spec().StreamOut; c != nil {
		cfg = *c
	}
	opts, err := streamOptions(transport.Producer, cfg.Transport, cfg.MulticastGroup, cfg.Port)
	if err != nil {
		return err
	}
	ep, err := s.provision(ctx, s.provisioner, opts, DataTypeAny)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ep = ep
	s.mu.Unlock()
	return nil
}

// Stop implements Node. Queued payloads are discarded.
func (s *StreamOut) Stop() error {
	return s.halt(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if n := s.queue.Drain(); n > 0 {
			s.logger.Debug("Discarded queued payloads", "count", n)
		}
		_ = s.queue.Close()
		err := s.ep.Close()
		s.ep = nil
		return err
	})
}

// OnDataReceived enqueues payload, waiting up to one second for space. It
// fails with ErrQueueFull when the queue stays full.
func (s *StreamOut) OnDataReceived(ctx context.Context, payload any) error {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return errors.InvalidStatef("node %d is not configured", s.id)
	}

	if err := q.Put(ctx, payload, pollTimeout); err != nil {
		if errors.Is(err, errors.ErrQueueFull) {
			s.metrics.Drop("queue_full")
			s.errlog.Warn("Outbound queue full, dropping payload", "capacity", q.Capacity())
			return errors.WrapTransient(err, s.name(), "OnDataReceived", "enqueue")
		}
		return err
	}
	return nil
}

func (s *StreamOut) loop(ctx context.Context) {
	s.mu.Lock()
	q, ep := s.queue, s.ep
	s.mu.Unlock()

	for {
		item, err := q.Get(ctx, pollTimeout)
		if err != nil {
			if errors.Is(err, errors.ErrTimeout) {
				continue
			}
			// Cancelled or queue closed.
			return
		}

		data, err := encodePayload(item)
		if err != nil {
			reason := "unsupported_data_type"
			if errors.Is(err, errors.ErrMalformedRecord) {
				reason = "malformed_record"
			}
			s.metrics.Drop(reason)
			s.loopError(reason, err, "Dropping payload")
			continue
		}

		n, err := ep.Send(data)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.loopError("send", err, "Send failed", "bytes", len(data))
			continue
		}
		s.metrics.Sent(n)
		s.tracker.Processed()
	}
}

// encodePayload turns a queued item into bytes for the wire.
func encodePayload(item any) ([]byte, error) {
	switch v := item.(type) {
	case []byte:
		return v, nil
	case wire.Record:
		return wire.Encode(v)
	case *wire.Record:
		if v == nil {
			return nil, errors.WrapInvalid(errors.ErrUnsupportedDataType, "StreamOut", "encode", "nil record")
		}
		return wire.Encode(*v)
	default:
		return nil, errors.WrapInvalid(
			errors.Join(errors.ErrUnsupportedDataType, typeError(item)),
			"StreamOut", "encode", "payload type check")
	}
}
