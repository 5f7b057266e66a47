package ingest

import "errors"

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("archive job queue is full")

	// ErrDispatcherClosed is returned by Submit after Shutdown has begun.
	ErrDispatcherClosed = errors.New("dispatcher is shut down")

	// ErrJobNotFound is returned for unknown or evicted job IDs.
	ErrJobNotFound = errors.New("archive job not found")
)
