package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor keeps the last reported status of daemon subsystems that change
// health on their own schedule, such as the NATS connection behind the
// relay. It is safe for concurrent use.
type Monitor struct {
	mu      sync.RWMutex
	reports map[string]Status
	now     func() time.Time
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{reports: make(map[string]Status), now: time.Now}
}

// Update records status under name, replacing any earlier report.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = m.now()
	}

	m.mu.Lock()
	m.reports[name] = status
	m.mu.Unlock()
}

// Set records a healthy or unhealthy report. It matches the shape of a
// connection health callback.
func (m *Monitor) Set(name string, healthy bool, message string) {
	if healthy {
		m.Update(name, NewHealthy(name, message))
		return
	}
	m.Update(name, NewUnhealthy(name, message))
}

// Get returns the last report for name.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.reports[name]
	return s, ok
}

// Remove forgets name.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	delete(m.reports, name)
	m.mu.Unlock()
}

// Statuses returns every report ordered by name.
func (m *Monitor) Statuses() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.reports))
	for _, s := range m.reports {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

// AggregateHealth folds the reports, plus extra, into one status for system.
func (m *Monitor) AggregateHealth(system string, extra ...Status) Status {
	return Aggregate(system, append(extra, m.Statuses()...))
}
