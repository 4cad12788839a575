package wire

import (
	"fmt"
	"math"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// SampleType discriminates the kind of samples a record carries.
type SampleType uint8

const (
	// SampleTypeBroadband is continuous multichannel voltage data.
	SampleTypeBroadband SampleType = 1
)

// String returns the lowercase name of the sample type.
func (t SampleType) String() string {
	switch t {
	case SampleTypeBroadband:
		return "broadband"
	default:
		return fmt.Sprintf("sample_type(%d)", uint8(t))
	}
}

// Supported bit widths.
const (
	BitWidth16 = 16
	BitWidth64 = 64
)

const (
	// Magic marks the first byte of every record.
	Magic byte = 0xA5
	// HeaderLen is the size of the fixed header in bytes.
	HeaderLen = 15

	maxChannels         = math.MaxUint16
	maxSamplesPerChannel = math.MaxUint16
)

// Record is one timestamped batch of multichannel samples.
type Record struct {
	Type SampleType
	// Timestamp is the origin time of the first sample in microseconds.
	Timestamp int64
	BitWidth  int
	// Samples holds one vector per channel; every vector has the same length.
	Samples [][]float64
}

// ChannelCount returns the number of channels in the record.
func (r Record) ChannelCount() int {
	return len(r.Samples)
}

// SamplesPerChannel returns the common per-channel vector length.
func (r Record) SamplesPerChannel() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// Validate checks that the record can be encoded losslessly.
func (r Record) Validate() error {
	if r.Type == 0 {
		return fmt.Errorf("%w: sample type not set", errors.ErrMalformedRecord)
	}
	if _, err := bytesPerSample(r.BitWidth); err != nil {
		return err
	}
	if len(r.Samples) > maxChannels {
		return fmt.Errorf("%w: %d channels exceeds %d", errors.ErrMalformedRecord, len(r.Samples), maxChannels)
	}

	n := r.SamplesPerChannel()
	if n > maxSamplesPerChannel {
		return fmt.Errorf("%w: %d samples per channel exceeds %d", errors.ErrMalformedRecord, n, maxSamplesPerChannel)
	}
	for ch, samples := range r.Samples {
		if len(samples) != n {
			return fmt.Errorf("%w: channel %d has %d samples, want %d",
				errors.ErrMalformedRecord, ch, len(samples), n)
		}
		if r.BitWidth != BitWidth16 {
			continue
		}
		for i, v := range samples {
			if v != math.Trunc(v) || v < math.MinInt16 || v > math.MaxInt16 {
				return fmt.Errorf("%w: channel %d sample %d value %v does not fit int16",
					errors.ErrMalformedRecord, ch, i, v)
			}
		}
	}
	return nil
}

func bytesPerSample(bitWidth int) (int, error) {
	switch bitWidth {
	case BitWidth16:
		return 2, nil
	case BitWidth64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: unsupported bit width %d", errors.ErrMalformedRecord, bitWidth)
	}
}
