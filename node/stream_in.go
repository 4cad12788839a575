package node

import (
	"context"
	"io"
	"sync"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/retry"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

// maxDatagram is the largest payload a StreamIn accepts.
const maxDatagram = 65536

// StreamIn receives datagrams or pub/sub frames and emits them downstream.
type StreamIn struct {
	*base
	provisioner *transport.Provisioner

	mu sync.Mutex
	ep transport.Endpoint
}

var _ Node = (*StreamIn)(nil)

// NewStreamIn creates an unconfigured StreamIn.
func NewStreamIn(id int, deps Deps) (Node, error) {
	if deps.Provisioner == nil {
		return nil, missingDep("StreamIn", "provisioner")
	}
	return &StreamIn{
		base:        newBase(id, TypeStreamIn, deps),
		provisioner: deps.Provisioner,
	}, nil
}

// Validate implements Node.
func (s *StreamIn) Validate(spec Spec) error {
	if err := spec.check(TypeStreamIn); err != nil {
		return err
	}
	cfg := spec.StreamIn
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
	switch cfg.BitWidth {
	case 0, wire.BitWidth16, wire.BitWidth64:
	default:
		return errors.Invalidf("node %d: bit_width %d must be one of [0 %d %d]",
			spec.ID, cfg.BitWidth, wire.BitWidth16, wire.BitWidth64)
	}
	return nil
}

// Configure implements Node.
func (s *StreamIn) Configure(_ context.Context, spec Spec) error {
	return s.configure(spec, s.Validate, nil)
}

// Start implements Node.
func (s *StreamIn) Start(ctx context.Context) error {
	return s.run(ctx, s.open, s.loop)
}

func (s *StreamIn) open(ctx context.Context) error {
	var cfg StreamInSpec
	if c := s.Spec().StreamIn; c != nil {
		cfg = *c
	}
	opts, err := streamOptions(transport.Consumer, cfg.Transport, cfg.MulticastGroup, cfg.Port)
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

// Stop implements Node.
func (s *StreamIn) Stop() error {
	return s.halt(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ep == nil {
			return nil
		}
		err := s.ep.Close()
		s.ep = nil
		return err
	})
}

// OnDataReceived forwards payload downstream.
func (s *StreamIn) OnDataReceived(ctx context.Context, payload any) error {
	s.emit(ctx, payload)
	return nil
}

func (s *StreamIn) loop(ctx context.Context) {
	s.mu.Lock()
	ep := s.ep
	s.mu.Unlock()

	var cfg StreamInSpec
	if c := s.Spec().StreamIn; c != nil {
		cfg = *c
	}

	// Closing the endpoint wakes a blocked Receive, so Stop does not wait
	// out the poll timeout. Stop closes it again; Close is idempotent.
	unblock := context.AfterFunc(ctx, func() { _ = ep.Close() })
	defer unblock()

	buf := make([]byte, maxDatagram)
	backoff := retry.NewBackoff(retry.Poll())
	for ctx.Err() == nil {
		n, err := ep.Receive(buf, pollTimeout)
		if err != nil {
			if errors.Is(err, errors.ErrTimeout) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.ErrShortBuffer) {
				s.metrics.Drop("oversized_frame")
				s.loopError("receive", err, "Dropping oversized frame", "limit", maxDatagram)
				continue
			}
			s.loopError("receive", err, "Receive failed")
			_ = backoff.Wait(ctx)
			continue
		}
		backoff.Reset()
		s.metrics.Received(n)

		payload := make([]byte, n)
		copy(payload, buf[:n])
		if !cfg.Decode {
			s.tracker.Processed()
			_ = s.OnDataReceived(ctx, payload)
			continue
		}

		rec, err := wire.Decode(payload, cfg.BitWidth)
		if err != nil {
			s.metrics.Drop("malformed_record")
			s.loopError("decode", err, "Dropping malformed record", "bytes", n)
			continue
		}
		s.metrics.Record()
		s.tracker.Processed()
		_ = s.OnDataReceived(ctx, rec)
	}
}
