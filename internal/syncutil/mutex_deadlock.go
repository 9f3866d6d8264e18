//go:build deadlock

// Package syncutil provides the lock types used by the engine, mailbox and
// dispatcher. This file is compiled when building with -tags=deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DetectionEnabled reports whether this binary was built with -tags=deadlock.
const DetectionEnabled = true

// Mutex wraps deadlock.Mutex for deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex wraps deadlock.RWMutex for deadlock detection.
type RWMutex struct {
	deadlock.RWMutex
}

// SetLockTimeout sets how long a goroutine may wait on a lock before
// go-deadlock reports it. The finalize ack wait is the longest legitimate
// hold in the engine, so callers should keep this above it.
func SetLockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}
