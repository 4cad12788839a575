package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/driver"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

func testConfig(mod func(*Config)) Config {
	cfg := DefaultConfig()
	mod(&cfg)
	return cfg
}

func TestDefaults(t *testing.T) {
	d := New(DefaultConfig())
	caps := d.Capabilities()

	assert.Equal(t, 192, caps.ChCount)
	assert.Equal(t, []int{500, 1000, 2000, 10000, 30000}, caps.SampleRates)
	assert.Equal(t, []int{16, 64}, caps.BitWidths)
	assert.Empty(t, caps.Gains)
	assert.Equal(t, 1, caps.ChannelIndexBase)
	assert.Equal(t, driver.GainStrict, caps.GainPolicy)

	p := d.Peripheral()
	assert.Equal(t, uint32(1), p.ID)
	assert.Equal(t, "Blackrock Neurotech", p.Vendor)
}

func TestConfigureChannel(t *testing.T) {
	ctx := context.Background()
	d := New(testConfig(func(c *Config) { c.ChCount = 4 }))

	require.NoError(t, d.ConfigureChannel(ctx, 1, driver.SampleGroup30kHz))
	require.NoError(t, d.ConfigureChannel(ctx, 4, driver.SampleGroup500Hz))
	assert.Equal(t, 2, d.EnabledChannels())
	assert.Equal(t, driver.SampleGroup30kHz, d.ChannelGroup(1))

	require.NoError(t, d.ConfigureChannel(ctx, 1, driver.SampleGroupNone))
	assert.Equal(t, 1, d.EnabledChannels())

	for _, idx := range []int{0, 5} {
		err := d.ConfigureChannel(ctx, idx, driver.SampleGroup1kHz)
		assert.ErrorIs(t, err, errors.ErrHardwareDriver, "index %d", idx)
	}

	d.FailChannel(2)
	assert.ErrorIs(t, d.ConfigureChannel(ctx, 2, driver.SampleGroup1kHz), errors.ErrHardwareDriver)
}

func TestConfigureSystem(t *testing.T) {
	d := New(Config{})
	require.NoError(t, d.ConfigureSystem(context.Background(), 64))
	assert.Equal(t, 64, d.BitWidth())
	assert.ErrorIs(t, d.ConfigureSystem(context.Background(), 32), errors.ErrHardwareDriver)
}

func TestReadTrial(t *testing.T) {
	ctx := context.Background()
	d := New(testConfig(func(c *Config) {
		c.ChCount = 8
		c.TrialInterval = 5 * time.Millisecond
	}))
	require.NoError(t, d.ConfigureChannel(ctx, 2, driver.SampleGroup2kHz))
	require.NoError(t, d.ConfigureChannel(ctx, 3, driver.SampleGroup2kHz))
	require.NoError(t, d.ConfigureSystem(ctx, 16))

	first, err := d.ReadTrial(ctx)
	require.NoError(t, err)
	require.Len(t, first.Channels, 2)
	assert.Equal(t, 2, first.Channels[0].Index)
	assert.Len(t, first.Channels[0].Samples, 10)
	for _, v := range first.Channels[0].Samples {
		assert.Equal(t, math.Round(v), v, "16-bit samples are integral")
		assert.LessOrEqual(t, math.Abs(v), 1000.0)
	}

	second, err := d.ReadTrial(ctx)
	require.NoError(t, err)
	assert.Greater(t, second.Timestamp, first.Timestamp)
	assert.Equal(t, 2, d.Reads())
}

func TestReadTrial_NoChannels(t *testing.T) {
	d := New(Config{TrialInterval: time.Millisecond})
	trial, err := d.ReadTrial(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trial.Channels)
}

func TestReadTrial_InjectedFailures(t *testing.T) {
	d := New(Config{TrialInterval: time.Millisecond})
	d.FailReads(2)

	for i := 0; i < 2; i++ {
		_, err := d.ReadTrial(context.Background())
		assert.ErrorIs(t, err, errors.ErrHardwareDriver)
		assert.True(t, errors.IsTransient(err))
	}
	_, err := d.ReadTrial(context.Background())
	assert.NoError(t, err)
}

func TestReadTrial_Cancelled(t *testing.T) {
	d := New(Config{TrialInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.ReadTrial(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, d.Reads())
}

func TestClose(t *testing.T) {
	d := New(Config{TrialInterval: time.Millisecond})
	require.NoError(t, d.Close())

	_, err := d.ReadTrial(context.Background())
	assert.ErrorIs(t, err, errors.ErrHardwareDriver)
	assert.ErrorIs(t, d.ConfigureChannel(context.Background(), 1, driver.SampleGroup1kHz), errors.ErrHardwareDriver)
}
