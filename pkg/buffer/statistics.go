package buffer

import (
	"sync/atomic"
	"time"
)

// Statistics tracks queue activity. All methods are safe for concurrent use.
type Statistics struct {
	puts     atomic.Int64
	gets     atomic.Int64
	rejected atomic.Int64
	drained  atomic.Int64
	maxDepth atomic.Int64
	depth    atomic.Int64

	startTime time.Time
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Put records an accepted item.
func (s *Statistics) Put() { s.puts.Add(1) }

// Get records a removed item.
func (s *Statistics) Get() { s.gets.Add(1) }

// Reject records a put that gave up on a full queue.
func (s *Statistics) Reject() { s.rejected.Add(1) }

// Drain records an item discarded by Drain.
func (s *Statistics) Drain() { s.drained.Add(1) }

// UpdateDepth records the current depth and raises the high-water mark.
func (s *Statistics) UpdateDepth(depth int64) {
	s.depth.Store(depth)
	for {
		prev := s.maxDepth.Load()
		if depth <= prev || s.maxDepth.CompareAndSwap(prev, depth) {
			return
		}
	}
}

// Puts returns the number of accepted items.
func (s *Statistics) Puts() int64 { return s.puts.Load() }

// Gets returns the number of removed items.
func (s *Statistics) Gets() int64 { return s.gets.Load() }

// Rejected returns the number of puts that failed with a full queue.
func (s *Statistics) Rejected() int64 { return s.rejected.Load() }

// Drained returns the number of items discarded by Drain.
func (s *Statistics) Drained() int64 { return s.drained.Load() }

// MaxDepth returns the highest depth observed.
func (s *Statistics) MaxDepth() int64 { return s.maxDepth.Load() }

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Puts     int64         `json:"puts"`
	Gets     int64         `json:"gets"`
	Rejected int64         `json:"rejected"`
	Drained  int64         `json:"drained"`
	Depth    int64         `json:"depth"`
	MaxDepth int64         `json:"max_depth"`
	Uptime   time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Puts:     s.Puts(),
		Gets:     s.Gets(),
		Rejected: s.Rejected(),
		Drained:  s.Drained(),
		Depth:    s.depth.Load(),
		MaxDepth: s.MaxDepth(),
		Uptime:   time.Since(s.startTime),
	}
}
