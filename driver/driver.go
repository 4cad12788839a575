// Package driver defines the boundary between acquisition nodes and the
// vendor hardware SDK.
package driver

import (
	"context"
	"fmt"
	"slices"
)

// SampleGroup is the hardware sample-rate group a channel is assigned to.
// SampleGroupNone disables the channel.
type SampleGroup int

// Sample groups.
const (
	SampleGroupNone SampleGroup = iota
	SampleGroup500Hz
	SampleGroup1kHz
	SampleGroup2kHz
	SampleGroup10kHz
	SampleGroup30kHz
)

var sampleGroups = map[int]SampleGroup{
	500:   SampleGroup500Hz,
	1000:  SampleGroup1kHz,
	2000:  SampleGroup2kHz,
	10000: SampleGroup10kHz,
	30000: SampleGroup30kHz,
}

// SampleGroupFor returns the group for a sample rate in Hz.
func SampleGroupFor(rate int) (SampleGroup, bool) {
	g, ok := sampleGroups[rate]
	return g, ok
}

// Rate returns the group's sample rate in Hz, or 0 for SampleGroupNone.
func (g SampleGroup) Rate() int {
	for rate, group := range sampleGroups {
		if group == g {
			return rate
		}
	}
	return 0
}

func (g SampleGroup) String() string {
	if g == SampleGroupNone {
		return "none"
	}
	if r := g.Rate(); r > 0 {
		return fmt.Sprintf("%dHz", r)
	}
	return fmt.Sprintf("sample_group(%d)", int(g))
}

// GainPolicy decides how a requested gain is checked against the hardware's
// gain set.
type GainPolicy int

const (
	// GainStrict accepts a zero (unset) gain or a member of the gain set. An
	// empty gain set therefore rejects every non-zero gain.
	GainStrict GainPolicy = iota
	// GainAnyWhenEmpty treats an empty gain set as "hardware does not
	// constrain gain" and accepts any value.
	GainAnyWhenEmpty
)

func (p GainPolicy) String() string {
	switch p {
	case GainStrict:
		return "strict"
	case GainAnyWhenEmpty:
		return "any_when_empty"
	default:
		return fmt.Sprintf("gain_policy(%d)", int(p))
	}
}

// Capabilities is the hardware-reported descriptor acquisition nodes are
// validated against.
type Capabilities struct {
	ChCount     int       `json:"ch_count"`
	SampleRates []int     `json:"sample_rates"`
	BitWidths   []int     `json:"bit_widths"`
	Gains       []float64 `json:"gains"`
	// ChannelIndexBase is added to a 0-based channel id to get the hardware
	// channel index.
	ChannelIndexBase int        `json:"channel_index_base"`
	GainPolicy       GainPolicy `json:"-"`
}

// SupportsRate reports whether rate is in the supported set.
func (c Capabilities) SupportsRate(rate int) bool {
	return slices.Contains(c.SampleRates, rate)
}

// SupportsBitWidth reports whether width is in the supported set.
func (c Capabilities) SupportsBitWidth(width int) bool {
	return slices.Contains(c.BitWidths, width)
}

// AcceptsGain applies the gain policy.
func (c Capabilities) AcceptsGain(gain float64) bool {
	if gain == 0 {
		return true
	}
	if len(c.Gains) == 0 {
		return c.GainPolicy == GainAnyWhenEmpty
	}
	return slices.Contains(c.Gains, gain)
}

// HardwareIndex maps a 0-based channel id to the driver's channel index.
func (c Capabilities) HardwareIndex(channelID int) int {
	return channelID + c.ChannelIndexBase
}

// Peripheral identifies a piece of hardware behind a driver.
type Peripheral struct {
	Name         string       `json:"name"`
	Vendor       string       `json:"vendor"`
	ID           uint32       `json:"peripheral_id"`
	Type         string       `json:"type"`
	Capabilities Capabilities `json:"options"`
}

// Channel is one hardware channel's samples from a trial.
type Channel struct {
	Index   int
	Samples []float64
}

// Trial is one poll of continuous data. Timestamp is the origin time of the
// first sample in microseconds.
type Trial struct {
	Timestamp int64
	Channels  []Channel
}

// Driver is an opaque acquisition device. Implementations report failures
// wrapping errors.ErrHardwareDriver.
type Driver interface {
	Peripheral() Peripheral
	Capabilities() Capabilities
	// ConfigureChannel enables (group != SampleGroupNone) or disables a
	// hardware channel.
	ConfigureChannel(ctx context.Context, index int, group SampleGroup) error
	// ConfigureSystem sets up the acquisition buffer for the bit width.
	ConfigureSystem(ctx context.Context, bitWidth int) error
	// ReadTrial returns the samples collected since the previous call. It
	// may block briefly and must return when ctx ends.
	ReadTrial(ctx context.Context) (Trial, error)
	Close() error
}
