// Package timestamp provides origin timestamp handling for sample records.
//
// Sample records carry int64 microseconds since the Unix epoch (UTC). A value
// of 0 means "not set"; conversion helpers return zero values for it.
//
//	ts := timestamp.Now()
//	t := timestamp.ToTime(ts)
//	display := timestamp.Format(ts)
//
// Acquisition loops that need strictly increasing values use a Monotonic
// clock, which never returns the same or an earlier value twice even if the
// wall clock steps backwards.
package timestamp

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Now returns the current time as Unix microseconds.
func Now() int64 {
	return time.Now().UnixMicro()
}

// ToUnixMicro converts a time.Time to Unix microseconds.
func ToUnixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// ToTime converts Unix microseconds to time.Time.
// Returns zero time if timestamp is 0.
func ToTime(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

// Format converts Unix microseconds to an RFC3339 string with microsecond
// precision. Returns empty string if timestamp is 0.
func Format(us int64) string {
	if us == 0 {
		return ""
	}
	return time.UnixMicro(us).UTC().Format("2006-01-02T15:04:05.000000Z07:00")
}

// Since returns the duration since the given timestamp.
// Returns 0 if timestamp is zero.
func Since(us int64) time.Duration {
	if us == 0 {
		return 0
	}
	return time.Since(time.UnixMicro(us))
}

// Between returns the duration between two timestamps.
// Returns 0 if either timestamp is zero.
func Between(start, end int64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return time.Duration(end-start) * time.Microsecond
}

// Validate checks if a timestamp is non-negative and not unreasonably far in
// the future.
func Validate(us int64) error {
	if us < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", us)
	}
	// year 3000
	if us > 32503680000000000 {
		return fmt.Errorf("timestamp too far in future: %d", us)
	}
	return nil
}

// Monotonic issues strictly increasing microsecond timestamps.
// The zero value is ready to use and safe for concurrent callers.
type Monotonic struct {
	last atomic.Int64
	now  func() int64
}

// NewMonotonic returns a clock reading from now. A nil now uses Now.
func NewMonotonic(now func() int64) *Monotonic {
	return &Monotonic{now: now}
}

// Next returns max(now, last+1) and records it.
func (m *Monotonic) Next() int64 {
	read := m.now
	if read == nil {
		read = Now
	}
	for {
		prev := m.last.Load()
		next := read()
		if next <= prev {
			next = prev + 1
		}
		if m.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
