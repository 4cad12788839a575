package node

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/driver/sim"
	"github.com/sciencecorp/synapse-cereplex-driver/errors"
	"github.com/sciencecorp/synapse-cereplex-driver/health"
)

func TestRegistry_Types(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []Type{
		TypeElectricalBroadband,
		TypeOpticalStimulation,
		TypeStreamIn,
		TypeStreamOut,
	}, r.Types())
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TypeStreamIn, NewStreamIn))

	err := r.Register(TypeStreamIn, NewStreamIn)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "already registered")

	assert.Error(t, r.Register("", NewStreamIn))
	assert.Error(t, r.Register(TypeStreamOut, nil))
}

func TestRegistry_UnknownType(t *testing.T) {
	r := DefaultRegistry()
	spec := Spec{ID: 1, Type: "laser_cannon"}

	err := r.Validate(spec, testDeps(t))
	require.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), `unknown node type "laser_cannon"`)
	assert.Contains(t, err.Error(), "stream_out")

	_, err = r.Create(context.Background(), spec, testDeps(t))
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestRegistry_Create(t *testing.T) {
	deps := testDeps(t)
	deps.Driver = sim.New(sim.DefaultConfig())

	tests := []Spec{
		{ID: 0, Type: TypeStreamIn},
		{ID: 1, Type: TypeStreamOut, StreamOut: &StreamOutSpec{MulticastGroup: "239.0.0.115"}},
		{ID: 2, Type: TypeElectricalBroadband, ElectricalBroadband: &ElectricalBroadbandSpec{
			PeripheralID: 1, SampleRate: 1000, BitWidth: 16, Channels: []Channel{{ID: 0}},
		}},
		{ID: 3, Type: TypeOpticalStimulation, OpticalStimulation: &OpticalStimulationSpec{FrameRate: 60, BitWidth: 8}},
	}
	for _, spec := range tests {
		t.Run(string(spec.Type), func(t *testing.T) {
			n, err := DefaultRegistry().Create(context.Background(), spec, deps)
			require.NoError(t, err)
			assert.Equal(t, spec.ID, n.ID())
			assert.Equal(t, spec.Type, n.Type())
			assert.Equal(t, StateConfigured, n.State())
			assert.Equal(t, spec, n.Spec())
			assert.Nil(t, n.Describe())
		})
	}
}

func TestRegistry_MissingDeps(t *testing.T) {
	r := DefaultRegistry()
	for _, typ := range []Type{TypeStreamIn, TypeStreamOut, TypeElectricalBroadband} {
		err := r.Validate(Spec{ID: 1, Type: typ}, Deps{})
		assert.ErrorIs(t, err, errors.ErrMissingConfig, "type %s", typ)
	}
}

func TestSpec_Check(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{"valid", Spec{ID: 3, Type: TypeStreamIn, StreamIn: &StreamInSpec{}}, ""},
		{"negative id", Spec{ID: -1, Type: TypeStreamIn}, "node id -1 must be >= 0"},
		{"type mismatch", Spec{ID: 1, Type: TypeStreamOut}, `type "stream_out" does not match "stream_in"`},
		{"foreign sub-message", Spec{ID: 1, Type: TypeStreamIn, StreamOut: &StreamOutSpec{}}, "stream_out config given for a stream_in node"},
		{"first of several foreign sub-messages", Spec{
			ID: 1, Type: TypeStreamIn,
			OpticalStimulation:  &OpticalStimulationSpec{},
			ElectricalBroadband: &ElectricalBroadbandSpec{},
			StreamOut:           &StreamOutSpec{},
		}, "stream_out config given for a stream_in node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Repeat so an unordered check would show up as a flake.
			for i := 0; i < 20; i++ {
				err := tt.spec.check(TypeStreamIn)
				if tt.wantErr == "" {
					assert.NoError(t, err)
					return
				}
				require.ErrorIs(t, err, errors.ErrValidation)
				require.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "configured", StateConfigured.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	n, err := NewOpticalStimulation(4, Deps{})
	require.NoError(t, err)
	assert.Equal(t, StateCreated, n.State())

	// Not configured yet.
	assert.ErrorIs(t, n.Start(ctx), errors.ErrInvalidState)
	assert.NoError(t, n.Stop(), "stop before start is a no-op")

	spec := Spec{ID: 4, Type: TypeOpticalStimulation, OpticalStimulation: &OpticalStimulationSpec{FrameRate: 30, BitWidth: 8}}
	require.NoError(t, n.Configure(ctx, spec))
	spec.OpticalStimulation = &OpticalStimulationSpec{FrameRate: 60, BitWidth: 16}
	require.NoError(t, n.Configure(ctx, spec), "reconfigure while not running")
	assert.Equal(t, 60, n.Spec().OpticalStimulation.FrameRate)

	require.NoError(t, n.Start(ctx))
	assert.Equal(t, StateRunning, n.State())
	assert.ErrorIs(t, n.Start(ctx), errors.ErrInvalidState)
	assert.ErrorIs(t, n.Configure(ctx, spec), errors.ErrInvalidState)

	require.NoError(t, n.Stop())
	assert.Equal(t, StateStopped, n.State())
	require.NoError(t, n.Stop(), "double stop")
	assert.ErrorIs(t, n.Start(ctx), errors.ErrInvalidState, "no restart after stop")
	assert.ErrorIs(t, n.Configure(ctx, spec), errors.ErrInvalidState)
}

func TestLifecycle_FailedConfigureKeepsSpec(t *testing.T) {
	ctx := context.Background()
	n, err := NewOpticalStimulation(4, Deps{})
	require.NoError(t, err)

	good := Spec{ID: 4, Type: TypeOpticalStimulation, OpticalStimulation: &OpticalStimulationSpec{FrameRate: 30, BitWidth: 8}}
	require.NoError(t, n.Configure(ctx, good))

	bad := Spec{ID: 4, Type: TypeOpticalStimulation, OpticalStimulation: &OpticalStimulationSpec{FrameRate: 30, BitWidth: 12}}
	require.ErrorIs(t, n.Configure(ctx, bad), errors.ErrValidation)
	assert.Equal(t, good, n.Spec())
	assert.Equal(t, StateConfigured, n.State())
}

func TestHealth(t *testing.T) {
	n, err := NewOpticalStimulation(2, Deps{})
	require.NoError(t, err)

	h := n.Health()
	assert.Equal(t, "optical_stimulation-2", h.Component)
	assert.Equal(t, health.StatusHealthy, h.Status)

	ctx := context.Background()
	require.NoError(t, n.Configure(ctx, Spec{ID: 2, Type: TypeOpticalStimulation,
		OpticalStimulation: &OpticalStimulationSpec{FrameRate: 30, BitWidth: 8}}))
	require.NoError(t, n.Start(ctx))
	defer n.Stop()
	assert.True(t, n.Health().IsHealthy())
}

func TestRateLogger(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	rl := newRateLogger(logger, time.Hour)

	for i := 0; i < 5; i++ {
		rl.Warn("Receive failed", "attempt", i)
	}
	assert.Equal(t, 1, strings.Count(out.String(), "Receive failed"))
	assert.Equal(t, int64(4), rl.suppressed.Load())
}
