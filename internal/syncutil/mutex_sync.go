//go:build !deadlock

// Package syncutil provides the lock types used by the engine, mailbox and
// dispatcher. Plain sync primitives are used by default. Build with
// -tags=deadlock to swap in github.com/sasha-s/go-deadlock, which reports
// lock-order inversions between the router goroutine and the OTA session.
package syncutil

import (
	"sync"
	"time"
)

// DetectionEnabled reports whether this binary was built with -tags=deadlock.
const DetectionEnabled = false

// Mutex wraps sync.Mutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.Mutex to expose its interface
type Mutex struct {
	sync.Mutex
}

// RWMutex wraps sync.RWMutex. Build with -tags=deadlock for deadlock detection.
//
//nolint:gocritic // Intentionally embedding sync.RWMutex to expose its interface
type RWMutex struct {
	sync.RWMutex
}

// SetLockTimeout is a no-op without the deadlock build tag.
func SetLockTimeout(time.Duration) {}
