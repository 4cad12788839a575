package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleGroupFor(t *testing.T) {
	tests := []struct {
		rate  int
		group SampleGroup
		ok    bool
	}{
		{500, SampleGroup500Hz, true},
		{1000, SampleGroup1kHz, true},
		{2000, SampleGroup2kHz, true},
		{10000, SampleGroup10kHz, true},
		{30000, SampleGroup30kHz, true},
		{12345, SampleGroupNone, false},
	}
	for _, tt := range tests {
		g, ok := SampleGroupFor(tt.rate)
		assert.Equal(t, tt.ok, ok, "rate %d", tt.rate)
		assert.Equal(t, tt.group, g, "rate %d", tt.rate)
		if ok {
			assert.Equal(t, tt.rate, g.Rate())
		}
	}
	assert.Equal(t, 0, SampleGroupNone.Rate())
	assert.Equal(t, "none", SampleGroupNone.String())
	assert.Equal(t, "30000Hz", SampleGroup30kHz.String())
	assert.Equal(t, "sample_group(9)", SampleGroup(9).String())
}

func TestCapabilities_AcceptsGain(t *testing.T) {
	tests := []struct {
		name   string
		caps   Capabilities
		gain   float64
		accept bool
	}{
		{"unset gain always accepted", Capabilities{}, 0, true},
		{"strict empty set rejects", Capabilities{GainPolicy: GainStrict}, 2, false},
		{"permissive empty set accepts", Capabilities{GainPolicy: GainAnyWhenEmpty}, 2, true},
		{"member accepted", Capabilities{Gains: []float64{1, 2, 4}}, 4, true},
		{"non-member rejected", Capabilities{Gains: []float64{1, 2, 4}}, 3, false},
		{"non-member rejected regardless of policy", Capabilities{Gains: []float64{1}, GainPolicy: GainAnyWhenEmpty}, 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.accept, tt.caps.AcceptsGain(tt.gain))
		})
	}
}

func TestCapabilities_Sets(t *testing.T) {
	caps := Capabilities{
		ChCount:          96,
		SampleRates:      []int{500, 30000},
		BitWidths:        []int{16, 64},
		ChannelIndexBase: 1,
	}
	assert.True(t, caps.SupportsRate(30000))
	assert.False(t, caps.SupportsRate(12345))
	assert.True(t, caps.SupportsBitWidth(64))
	assert.False(t, caps.SupportsBitWidth(32))
	assert.Equal(t, 1, caps.HardwareIndex(0))
	assert.Equal(t, 96, caps.HardwareIndex(95))
}

func TestGainPolicy_String(t *testing.T) {
	assert.Equal(t, "strict", GainStrict.String())
	assert.Equal(t, "any_when_empty", GainAnyWhenEmpty.String())
	assert.Equal(t, "gain_policy(7)", GainPolicy(7).String())
}
