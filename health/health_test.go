package health

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		name      string
		status    Status
		healthy   bool
		degraded  bool
		unhealthy bool
	}{
		{"healthy", NewHealthy("a", "ok"), true, false, false},
		{"degraded", NewDegraded("a", "slow"), false, true, false},
		{"unhealthy", NewUnhealthy("a", "down"), false, false, true},
		{"empty", Status{}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.healthy, tt.status.IsHealthy())
			assert.Equal(t, tt.degraded, tt.status.IsDegraded())
			assert.Equal(t, tt.unhealthy, tt.status.IsUnhealthy())
		})
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name     string
		subs     []Status
		expected string
	}{
		{"no children", nil, StatusHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StatusHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StatusDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("device", tt.subs)
			assert.Equal(t, tt.expected, got.Status)
			assert.Equal(t, "device", got.Component)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestWithSubStatus_DoesNotShareBacking(t *testing.T) {
	base := NewHealthy("device", "")
	a := base.WithSubStatus(NewHealthy("a", ""))
	b := a.WithSubStatus(NewHealthy("b", ""))
	c := a.WithSubStatus(NewHealthy("c", ""))

	assert.Len(t, a.SubStatuses, 1)
	assert.Equal(t, "b", b.SubStatuses[1].Component)
	assert.Equal(t, "c", c.SubStatuses[1].Component)
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"dial nats://user:pw@10.0.0.2:4222 failed", "dial [URL] failed"},
		{"auth failed: token=abc123", "auth failed: [REDACTED]"},
		{"send to 239.0.0.115:6480: no route", "send to 239.0.0.115:6480: no route"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeErrorMessage(tt.input))
		})
	}
}

func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestTracker_Report(t *testing.T) {
	clock, advance := fakeClock(time.Unix(1_700_000_000, 0))
	tr := NewTracker()
	tr.now = clock

	r := tr.Report()
	assert.True(t, r.Healthy)
	assert.Zero(t, r.Uptime)

	tr.Started()
	advance(2 * time.Second)
	tr.Processed()
	tr.Processed()
	tr.Error(fmt.Errorf("recv: connection refused"))
	tr.Error(nil)

	r = tr.Report()
	assert.Equal(t, 2*time.Second, r.Uptime)
	assert.Equal(t, int64(2), r.Processed)
	assert.Equal(t, int64(1), r.ErrorCount)
	assert.Equal(t, "recv: connection refused", r.LastError)
	assert.False(t, r.LastActivity.IsZero())

	advance(errorWindow + time.Second)
	r = tr.Report()
	assert.Empty(t, r.LastError, "stale errors are not reported")
	assert.Equal(t, int64(1), r.ErrorCount)

	tr.Stopped()
	assert.Zero(t, tr.Report().Uptime)
}

func TestFromReport(t *testing.T) {
	s := FromReport("node-1", Report{Healthy: true, Processed: 3})
	assert.True(t, s.IsHealthy())
	require.NotNil(t, s.Metrics)
	assert.Equal(t, int64(3), s.Metrics.Processed)

	s = FromReport("node-1", Report{Healthy: true, LastError: "send failed"})
	assert.True(t, s.IsDegraded())
	assert.Equal(t, "send failed", s.Message)

	s = FromReport("node-1", Report{Healthy: false})
	assert.True(t, s.IsUnhealthy())
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Update("relay", NewDegraded("", "circuit open"))
	m.Update("api", NewHealthy("", "listening"))

	s, ok := m.Get("relay")
	require.True(t, ok)
	assert.Equal(t, "relay", s.Component)

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "api", statuses[0].Component)

	agg := m.AggregateHealth("synapse", NewHealthy("device", ""))
	assert.True(t, agg.IsDegraded())
	assert.Len(t, agg.SubStatuses, 3)

	m.Remove("relay")
	assert.True(t, m.AggregateHealth("synapse").IsHealthy())

	m.Set("nats", false, "disconnected")
	agg = m.AggregateHealth("synapse", NewHealthy("device", ""))
	assert.True(t, agg.IsUnhealthy())
	assert.Equal(t, "device", agg.SubStatuses[0].Component)

	m.Set("nats", true, "connected")
	s, ok = m.Get("nats")
	require.True(t, ok)
	assert.True(t, s.IsHealthy())
	assert.Equal(t, "connected", s.Message)
}
