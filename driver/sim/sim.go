// Package sim is a simulated Cereplex-style acquisition driver. It serves
// the daemon when no hardware is attached and backs the node tests.
package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/pkg/timestamp"
)

// Config describes the simulated hardware.
type Config struct {
	ChCount          int
	SampleRates      []int
	BitWidths        []int
	Gains            []float64
	ChannelIndexBase int
	GainPolicy       driver.GainPolicy
	// TrialInterval is how much signal each ReadTrial returns.
	TrialInterval time.Duration
	// Amplitude of the synthetic signal in raw units.
	Amplitude float64
}

// DefaultConfig mirrors a Blackrock Cereplex hub: 192 channels, 1-indexed.
func DefaultConfig() Config {
	return Config{
		ChCount:          192,
		SampleRates:      []int{500, 1000, 2000, 10000, 30000},
		BitWidths:        []int{16, 64},
		Gains:            nil,
		ChannelIndexBase: 1,
		TrialInterval:    10 * time.Millisecond,
		Amplitude:        1000,
	}
}

// Driver is a simulated driver. It is safe for concurrent use.
type Driver struct {
	cfg   Config
	clock *timestamp.Monotonic

	mu          sync.Mutex
	groups      map[int]driver.SampleGroup
	bitWidth    int
	phase       float64
	closed      bool
	failChannel int
	failReads   int
	reads       int
}

// New creates a simulated driver. Zero fields take DefaultConfig values.
func New(cfg Config) *Driver {
	def := DefaultConfig()
	if cfg.ChCount == 0 {
		cfg.ChCount = def.ChCount
	}
	if len(cfg.SampleRates) == 0 {
		cfg.SampleRates = def.SampleRates
	}
	if len(cfg.BitWidths) == 0 {
		cfg.BitWidths = def.BitWidths
	}
	if cfg.TrialInterval <= 0 {
		cfg.TrialInterval = def.TrialInterval
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = def.Amplitude
	}
	return &Driver{
		cfg:         cfg,
		clock:       timestamp.NewMonotonic(nil),
		groups:      make(map[int]driver.SampleGroup),
		bitWidth:    16,
		failChannel: -1,
	}
}

// Peripheral implements driver.Driver.
func (d *Driver) Peripheral() driver.Peripheral {
	return driver.Peripheral{
		Name:         "Hub 1",
		Vendor:       "Blackrock Neurotech",
		ID:           1,
		Type:         "electrical_record",
		Capabilities: d.Capabilities(),
	}
}

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		ChCount:          d.cfg.ChCount,
		SampleRates:      append([]int(nil), d.cfg.SampleRates...),
		BitWidths:        append([]int(nil), d.cfg.BitWidths...),
		Gains:            append([]float64(nil), d.cfg.Gains...),
		ChannelIndexBase: d.cfg.ChannelIndexBase,
		GainPolicy:       d.cfg.GainPolicy,
	}
}

// ConfigureChannel implements driver.Driver.
func (d *Driver) ConfigureChannel(_ context.Context, index int, group driver.SampleGroup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return hwErr("configure channel %d: driver closed", index)
	}
	lo := d.cfg.ChannelIndexBase
	if index < lo || index >= lo+d.cfg.ChCount {
		return hwErr("configure channel %d: no such channel", index)
	}
	if index == d.failChannel {
		return hwErr("configure channel %d: set_channel_config returned code -1", index)
	}
	if group == driver.SampleGroupNone {
		delete(d.groups, index)
	} else {
		d.groups[index] = group
	}
	return nil
}

// ConfigureSystem implements driver.Driver.
func (d *Driver) ConfigureSystem(_ context.Context, bitWidth int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return hwErr("configure system: driver closed")
	}
	if bitWidth != 16 && bitWidth != 64 {
		return hwErr("configure system: unsupported bit width %d", bitWidth)
	}
	d.bitWidth = bitWidth
	return nil
}

// ReadTrial implements driver.Driver. It waits one trial interval, then
// returns that interval's worth of samples for every enabled channel.
func (d *Driver) ReadTrial(ctx context.Context) (driver.Trial, error) {
	timer := time.NewTimer(d.cfg.TrialInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return driver.Trial{}, ctx.Err()
	case <-timer.C:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return driver.Trial{}, hwErr("read trial: driver closed")
	}
	d.reads++
	if d.failReads > 0 {
		d.failReads--
		return driver.Trial{}, hwErr("read trial: trial_continuous returned code -2")
	}

	trial := driver.Trial{Timestamp: d.clock.Next()}
	lo := d.cfg.ChannelIndexBase
	for idx := lo; idx < lo+d.cfg.ChCount; idx++ {
		group, ok := d.groups[idx]
		if !ok {
			continue
		}
		n := int(float64(group.Rate()) * d.cfg.TrialInterval.Seconds())
		if n < 1 {
			n = 1
		}
		trial.Channels = append(trial.Channels, driver.Channel{Index: idx, Samples: d.synthesize(idx, n)})
	}
	d.phase += 2 * math.Pi * d.cfg.TrialInterval.Seconds()
	return trial, nil
}

// synthesize returns a per-channel sine; 16-bit samples are integral.
func (d *Driver) synthesize(index, n int) []float64 {
	out := make([]float64, n)
	freq := float64(1 + index%10)
	for i := range out {
		v := d.cfg.Amplitude * math.Sin(d.phase*freq+float64(i)*0.01*freq)
		if d.bitWidth == 16 {
			v = math.Round(v)
		}
		out[i] = v
	}
	return out
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// FailChannel makes ConfigureChannel fail for a hardware index.
func (d *Driver) FailChannel(index int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failChannel = index
}

// FailReads makes the next n ReadTrial calls fail.
func (d *Driver) FailReads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = n
}

// ChannelGroup returns the group assigned to a hardware index.
func (d *Driver) ChannelGroup(index int) driver.SampleGroup {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.groups[index]
}

// EnabledChannels returns how many channels are enabled.
func (d *Driver) EnabledChannels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.groups)
}

// BitWidth returns the configured acquisition bit width.
func (d *Driver) BitWidth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bitWidth
}

// Reads returns how many ReadTrial calls reached the device.
func (d *Driver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

func hwErr(format string, args ...any) error {
	return fmt.Errorf("sim: %s: %w", fmt.Sprintf(format, args...), errors.ErrHardwareDriver)
}

var _ driver.Driver = (*Driver)(nil)
