package node

import (
	"context"
	"fmt"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/retry"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

// maxRecordBytes keeps an encoded record inside one IPv4 UDP datagram.
const maxRecordBytes = 65507

// ElectricalBroadband acquires continuous multichannel data from a driver
// and emits it as broadband records.
type ElectricalBroadband struct {
	*base
	drv driver.Driver
}

var _ Node = (*ElectricalBroadband)(nil)

// NewElectricalBroadband creates an unconfigured acquisition node.
func NewElectricalBroadband(id int, deps Deps) (Node, error) {
	if deps.Driver == nil {
		return nil, missingDep("ElectricalBroadband", "driver")
	}
	return &ElectricalBroadband{
		base: newBase(id, TypeElectricalBroadband, deps),
		drv:  deps.Driver,
	}, nil
}

// Validate checks spec against the driver's capabilities. It stops at the
// first invalid field.
func (e *ElectricalBroadband) Validate(spec Spec) error {
	if err := spec.check(TypeElectricalBroadband); err != nil {
		return err
	}
	cfg := spec.ElectricalBroadband
	if cfg == nil {
		return errors.Invalidf("node %d: electrical_broadband config is required", spec.ID)
	}

	p := e.drv.Peripheral()
	if cfg.PeripheralID == 0 {
		return errors.Invalidf("node %d: must provide peripheral_id", spec.ID)
	}
	if cfg.PeripheralID != p.ID {
		return errors.Invalidf("node %d: invalid peripheral_id %d: must be one of [%d]", spec.ID, cfg.PeripheralID, p.ID)
	}

	caps := e.drv.Capabilities()
	if !caps.SupportsRate(cfg.SampleRate) {
		return errors.Invalidf("node %d: invalid sample rate %d: must be one of %v", spec.ID, cfg.SampleRate, caps.SampleRates)
	}
	if _, ok := driver.SampleGroupFor(cfg.SampleRate); !ok {
		return errors.Invalidf("node %d: sample rate %d has no hardware sample group", spec.ID, cfg.SampleRate)
	}
	if !caps.SupportsBitWidth(cfg.BitWidth) {
		return errors.Invalidf("node %d: invalid bit width %d: must be one of %v", spec.ID, cfg.BitWidth, caps.BitWidths)
	}
	if !caps.AcceptsGain(cfg.Gain) {
		return errors.Invalidf("node %d: invalid gain %v: must be one of %v", spec.ID, cfg.Gain, caps.Gains)
	}

	seen := make(map[int]struct{}, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.ID < 0 || ch.ID >= caps.ChCount {
			return errors.Invalidf("node %d: invalid channel id=%d: must be in [0, %d)", spec.ID, ch.ID, caps.ChCount)
		}
		if _, dup := seen[ch.ID]; dup {
			return errors.Invalidf("node %d: duplicate channel id=%d", spec.ID, ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

// Configure validates spec, then assigns every hardware channel its sample
// group (NONE for channels not listed) and sets the acquisition bit width.
// The first channel the driver rejects aborts the call.
func (e *ElectricalBroadband) Configure(ctx context.Context, spec Spec) error {
	return e.configure(spec, e.Validate, func(spec Spec) error {
		return e.applyHardware(ctx, *spec.ElectricalBroadband)
	})
}

func (e *ElectricalBroadband) applyHardware(ctx context.Context, cfg ElectricalBroadbandSpec) error {
	caps := e.drv.Capabilities()
	group, _ := driver.SampleGroupFor(cfg.SampleRate)

	enabled := make(map[int]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		enabled[ch.ID] = true
	}

	for c := 0; c < caps.ChCount; c++ {
		g := driver.SampleGroupNone
		if enabled[c] {
			g = group
		}
		if err := e.drv.ConfigureChannel(ctx, caps.HardwareIndex(c), g); err != nil {
			return errors.Wrap(err, e.name(), "Configure", fmt.Sprintf("channel %d configuration", c))
		}
	}
	if err := e.drv.ConfigureSystem(ctx, cfg.BitWidth); err != nil {
		return errors.Wrap(err, e.name(), "Configure", "system configuration")
	}

	e.logger.Info("Acquisition configured",
		"sample_rate", cfg.SampleRate, "bit_width", cfg.BitWidth, "channels", len(cfg.Channels))
	return nil
}

// Start implements Node.
func (e *ElectricalBroadband) Start(ctx context.Context) error {
	return e.run(ctx, nil, e.loop)
}

// Stop implements Node.
func (e *ElectricalBroadband) Stop() error {
	return e.halt(nil)
}

// OnDataReceived rejects input; acquisition nodes only produce.
func (e *ElectricalBroadband) OnDataReceived(context.Context, any) error {
	return errors.WrapInvalid(errors.ErrUnsupportedDataType, e.name(), "OnDataReceived", "input check")
}

func (e *ElectricalBroadband) loop(ctx context.Context) {
	cfg := *e.Spec().ElectricalBroadband
	backoff := retry.NewBackoff(retry.Poll())

	for ctx.Err() == nil {
		trial, err := e.drv.ReadTrial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.loopError("driver", err, "Driver poll failed")
			_ = backoff.Wait(ctx)
			continue
		}
		backoff.Reset()

		rec, dropped, ok := recordFromTrial(trial, cfg.BitWidth)
		if !ok {
			continue
		}
		if dropped > 0 {
			e.metrics.Drop("ragged_trial")
			e.errlog.Warn("Truncated ragged trial", "dropped_samples", dropped,
				"samples_per_channel", rec.SamplesPerChannel())
		}
		for _, chunk := range splitRecord(rec, cfg.SampleRate, maxRecordBytes) {
			e.metrics.Record()
			e.tracker.Processed()
			e.emit(ctx, chunk)
		}
	}
}

// recordFromTrial packs the non-empty channels of a trial into a broadband
// record. Record channels keep the trial's channel order with empty channels
// skipped, so a record position is not a hardware index. Longer channels are
// truncated to the shortest one so the record is rectangular; dropped counts
// the discarded samples. ok is false when no channel has samples.
func recordFromTrial(trial driver.Trial, bitWidth int) (rec wire.Record, dropped int, ok bool) {
	n := -1
	for _, ch := range trial.Channels {
		if len(ch.Samples) == 0 {
			continue
		}
		if n < 0 || len(ch.Samples) < n {
			n = len(ch.Samples)
		}
	}
	if n < 1 {
		return wire.Record{}, 0, false
	}

	rec = wire.Record{
		Type:      wire.SampleTypeBroadband,
		Timestamp: trial.Timestamp,
		BitWidth:  bitWidth,
	}
	for _, ch := range trial.Channels {
		if len(ch.Samples) == 0 {
			continue
		}
		dropped += len(ch.Samples) - n
		rec.Samples = append(rec.Samples, ch.Samples[:n])
	}
	return rec, dropped, true
}

// splitRecord cuts rec along the time axis so each piece encodes to at most
// maxBytes. Each piece's timestamp is its first sample's time.
func splitRecord(rec wire.Record, sampleRate, maxBytes int) []wire.Record {
	width := 8
	if rec.BitWidth == wire.BitWidth16 {
		width = 2
	}
	per := (maxBytes - wire.HeaderLen) / (rec.ChannelCount() * width)
	if per < 1 {
		per = 1
	}
	if per > 65535 {
		per = 65535
	}

	total := rec.SamplesPerChannel()
	if total <= per {
		return []wire.Record{rec}
	}

	out := make([]wire.Record, 0, (total+per-1)/per)
	for start := 0; start < total; start += per {
		end := min(start+per, total)
		chunk := wire.Record{
			Type:      rec.Type,
			Timestamp: rec.Timestamp + int64(start)*1_000_000/int64(sampleRate),
			BitWidth:  rec.BitWidth,
			Samples:   make([][]float64, rec.ChannelCount()),
		}
		for ch, samples := range rec.Samples {
			chunk.Samples[ch] = samples[start:end]
		}
		out = append(out, chunk)
	}
	return out
}
