package worker

import (
	"fmt"

	"github.com/sciencecorp/synapse-cereplex-driver/errors"
)

// Sentinel errors for worker pool operations
var (
	ErrPoolNotStarted     = errors.New("worker pool not started")
	ErrPoolStopped        = errors.New("worker pool stopped")
	ErrPoolAlreadyStarted = errors.New("worker pool already started")
	ErrNilProcessor       = errors.New("processor function cannot be nil")
	ErrStopTimeout        = errors.New("timeout waiting for workers to stop")

	// ErrQueueFull matches errors.ErrQueueFull as well.
	ErrQueueFull = fmt.Errorf("worker pool: %w", errors.ErrQueueFull)
)
