package node

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/buffer"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/timestamp"
)

// Optical stimulation limits.
const maxFrameRate = 10000

var opticalBitWidths = []int{8, 16}

// Frame is one stimulation frame.
type Frame struct {
	// Timestamp in microseconds; 0 means as soon as possible.
	Timestamp int64
	Data      []byte
}

// Stimulator drives an optical stimulation device.
type Stimulator interface {
	// Peripheral identifies the device. An ID of 0 means none is attached.
	Peripheral() driver.Peripheral
	Stimulate(ctx context.Context, f Frame) error
}

// LogStimulator is the stimulator used when no device is attached. It logs
// every frame at debug level.
type LogStimulator struct {
	Logger *slog.Logger
}

// Peripheral implements Stimulator.
func (LogStimulator) Peripheral() driver.Peripheral {
	return driver.Peripheral{Name: "log", Type: "optical_stimulation"}
}

// Stimulate implements Stimulator.
func (s LogStimulator) Stimulate(_ context.Context, f Frame) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Stimulation frame", "timestamp", f.Timestamp, "bytes", len(f.Data))
	return nil
}

// OpticalStimulation queues stimulation frames and hands them to a
// Stimulator in order.
type OpticalStimulation struct {
	*base
	stim Stimulator

	mu    sync.Mutex
	queue *buffer.Queue[Frame]
}

var _ Node = (*OpticalStimulation)(nil)

// NewOpticalStimulation creates an unconfigured stimulation node.
func NewOpticalStimulation(id int, deps Deps) (Node, error) {
	b := newBase(id, TypeOpticalStimulation, deps)
	stim := deps.Stimulator
	if stim == nil {
		stim = LogStimulator{Logger: b.logger}
	}
	return &OpticalStimulation{base: b, stim: stim}, nil
}

// Validate implements Node.
func (o *OpticalStimulation) Validate(spec Spec) error {
	if err := spec.check(TypeOpticalStimulation); err != nil {
		return err
	}
	cfg := spec.OpticalStimulation
	if cfg == nil {
		return errors.Invalidf("node %d: optical_stimulation config is required", spec.ID)
	}
	if id := o.stim.Peripheral().ID; cfg.PeripheralID != 0 && cfg.PeripheralID != id {
		return errors.Invalidf("node %d: invalid peripheral_id %d: must be one of [%d]", spec.ID, cfg.PeripheralID, id)
	}
	if cfg.FrameRate < 1 || cfg.FrameRate > maxFrameRate {
		return errors.Invalidf("node %d: invalid frame rate %d: must be in [1, %d]", spec.ID, cfg.FrameRate, maxFrameRate)
	}
	if !slices.Contains(opticalBitWidths, cfg.BitWidth) {
		return errors.Invalidf("node %d: invalid bit width %d: must be one of %v", spec.ID, cfg.BitWidth, opticalBitWidths)
	}
	if cfg.QueueSize < 0 {
		return errors.Invalidf("node %d: queue_size %d must be >= 0", spec.ID, cfg.QueueSize)
	}
	return nil
}

// Configure implements Node.
func (o *OpticalStimulation) Configure(_ context.Context, spec Spec) error {
	return o.configure(spec, o.Validate, func(spec Spec) error {
		size := DefaultQueueSize
		if spec.OpticalStimulation.QueueSize > 0 {
			size = spec.OpticalStimulation.QueueSize
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.queue != nil && o.queue.Capacity() == size {
			return nil
		}
		q, err := buffer.NewQueue[Frame](size)
		if err != nil {
			return err
		}
		if o.queue != nil {
			_ = o.queue.Close()
		}
		o.queue = q
		return nil
	})
}

// Start implements Node.
func (o *OpticalStimulation) Start(ctx context.Context) error {
	return o.run(ctx, nil, o.loop)
}

// Stop implements Node. Frames not yet delivered are discarded.
func (o *OpticalStimulation) Stop() error {
	return o.halt(func() error {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.queue.Drain()
		return o.queue.Close()
	})
}

// OnDataReceived queues a Frame, or raw frame bytes stamped with the current
// time.
func (o *OpticalStimulation) OnDataReceived(ctx context.Context, payload any) error {
	var f Frame
	switch v := payload.(type) {
	case Frame:
		f = v
	case *Frame:
		if v == nil {
			return errors.WrapInvalid(errors.ErrUnsupportedDataType, o.name(), "OnDataReceived", "nil frame")
		}
		f = *v
	case []byte:
		f = Frame{Timestamp: timestamp.Now(), Data: v}
	default:
		o.metrics.Drop("unsupported_data_type")
		return errors.WrapInvalid(
			errors.Join(errors.ErrUnsupportedDataType, typeError(payload)),
			o.name(), "OnDataReceived", "payload type check")
	}

	o.mu.Lock()
	q := o.queue
	o.mu.Unlock()
	if q == nil {
		return errors.InvalidStatef("node %d is not configured", o.id)
	}
	if err := q.Put(ctx, f, pollTimeout); err != nil {
		if errors.Is(err, errors.ErrQueueFull) {
			o.metrics.Drop("queue_full")
			return errors.WrapTransient(err, o.name(), "OnDataReceived", "enqueue")
		}
		return err
	}
	return nil
}

func (o *OpticalStimulation) loop(ctx context.Context) {
	o.mu.Lock()
	q := o.queue
	o.mu.Unlock()

	for {
		f, err := q.Get(ctx, pollTimeout)
		if err != nil {
			if errors.Is(err, errors.ErrTimeout) {
				continue
			}
			return
		}
		if err := o.stim.Stimulate(ctx, f); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.loopError("stimulate", err, "Stimulation failed")
			continue
		}
		o.metrics.Received(len(f.Data))
		o.tracker.Processed()
	}
}
