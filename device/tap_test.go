package device

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sciencecorp/synapse-cereplex-driver/driver/sim"
	"github.com/sciencecorp/synapse-cereplex-driver/metric"
	"github.com/sciencecorp/synapse-cereplex-driver/node"
	"github.com/sciencecorp/synapse-cereplex-driver/relay"
	"github.com/sciencecorp/synapse-cereplex-driver/testutil"
	"github.com/sciencecorp/synapse-cereplex-driver/transport"
	"github.com/sciencecorp/synapse-cereplex-driver/wire"
)

func TestController_RelayTap(t *testing.T) {
	sink := testutil.NewUDPSink(t)
	pub := testutil.NewMockPublisher()
	registry := metric.NewMetricsRegistry()

	r, err := relay.New(relay.DefaultConfig(), relay.Deps{Publisher: pub, Serial: "SN-TAP", Registry: registry})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Stop(time.Second) })

	ctrl, err := NewController(Identity{Name: "tap", Serial: "SN-TAP"}, Deps{
		Provisioner: transport.NewProvisioner(transport.Config{BasePort: sink.Port()}),
		Driver:      sim.New(sim.DefaultConfig()),
		Tap:         r,
		Metrics:     registry.CoreMetrics(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.Close() })

	ctx := context.Background()
	require.NoError(t, ctrl.Configure(ctx, Configuration{
		Nodes:       []node.Spec{electrical(4, 1000), streamOut(5, "")},
		Connections: []Connection{{Src: 4, Dst: 5}},
	}))
	require.NoError(t, ctrl.Start(ctx))

	// The stream out delivers what the relay publishes for the source node.
	datagram := sink.Read(2 * time.Second)
	rec, err := wire.Decode(datagram, 0)
	require.NoError(t, err)
	assert.Len(t, rec.Samples, 3)

	require.True(t, pub.WaitFor(r.NodeSubject(4), 1, 2*time.Second))
	tapped, err := wire.Decode(pub.Messages(r.NodeSubject(4))[0], 0)
	require.NoError(t, err)
	assert.Len(t, tapped.Samples, 3)
	assert.Zero(t, pub.Count(r.NodeSubject(5)), "stream outs emit nothing")

	require.NoError(t, ctrl.Stop(ctx))
	require.True(t, pub.WaitFor(r.StatusSubject(), 3, 2*time.Second))

	// Relay workers may reorder publishes, so look for the stopped snapshot
	// anywhere on the subject.
	assert.Eventually(t, func() bool {
		for _, msg := range pub.Messages(r.StatusSubject()) {
			var snap Snapshot
			if json.Unmarshal(msg, &snap) == nil && snap.State == StateStopped && snap.Serial == "SN-TAP" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}
