package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Report is a point-in-time health summary of a running unit.
type Report struct {
	Healthy      bool          `json:"healthy"`
	ErrorCount   int64         `json:"error_count"`
	LastError    string        `json:"last_error,omitempty"`
	Processed    int64         `json:"processed"`
	Uptime       time.Duration `json:"uptime"`
	LastActivity time.Time     `json:"last_activity,omitempty"`
}

// errorWindow is how long an error keeps a tracker degraded.
const errorWindow = 30 * time.Second

// Tracker accumulates the health of one node loop. Counters are atomic so
// the data path never takes a lock; only error recording does.
type Tracker struct {
	processed    atomic.Int64
	errors       atomic.Int64
	lastActivity atomic.Int64 // unix nanos

	mu        sync.Mutex
	started   time.Time
	running   bool
	lastError string
	lastErrAt time.Time

	now func() time.Time
}

// NewTracker returns an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Started marks the unit running and resets uptime.
func (t *Tracker) Started() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.started = t.now()
}

// Stopped marks the unit no longer running.
func (t *Tracker) Stopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

// Processed counts one unit of successful work.
func (t *Tracker) Processed() {
	t.processed.Add(1)
	t.lastActivity.Store(t.now().UnixNano())
}

// Error records a loop error.
func (t *Tracker) Error(err error) {
	if err == nil {
		return
	}
	t.errors.Add(1)
	t.mu.Lock()
	t.lastError = err.Error()
	t.lastErrAt = t.now()
	t.mu.Unlock()
}

// Report returns the current summary. A tracker that is not running reports
// healthy with no uptime; errors older than the error window are not
// reported as the last error.
func (t *Tracker) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	r := Report{
		Healthy:    true,
		ErrorCount: t.errors.Load(),
		Processed:  t.processed.Load(),
	}
	if ns := t.lastActivity.Load(); ns != 0 {
		r.LastActivity = time.Unix(0, ns)
	}
	if t.running {
		r.Uptime = now.Sub(t.started)
	}
	if t.lastError != "" && now.Sub(t.lastErrAt) < errorWindow {
		r.LastError = t.lastError
	}
	return r
}
