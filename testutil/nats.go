package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockPublisher is an in-memory NATS publisher. It satisfies the publish
// surface of natsclient.Client and is safe for concurrent use.
type MockPublisher struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	closed   bool
}

// NewMockPublisher creates an empty publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{messages: make(map[string][][]byte)}
}

// Publish records data under subject.
func (p *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	p.messages[subject] = append(p.messages[subject], append([]byte(nil), data...))
	return nil
}

// Messages returns a copy of everything published on subject.
func (p *MockPublisher) Messages(subject string) [][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([][]byte, len(p.messages[subject]))
	copy(out, p.messages[subject])
	return out
}

// Count returns how many messages were published on subject.
func (p *MockPublisher) Count(subject string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.messages[subject])
}

// WaitFor polls until subject has at least n messages or timeout passes.
func (p *MockPublisher) WaitFor(subject string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p.Count(subject) >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return p.Count(subject) >= n
}

// Close makes further publishes fail.
func (p *MockPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}
