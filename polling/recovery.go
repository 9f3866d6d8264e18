// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polling

import (
	"context"
	"errors"
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// ErrLinkDown is returned when the device is still unreachable after recovery.
var ErrLinkDown = errors.New("device link down")

// Recoverer handles reconnection after sleep/wake or link loss
type Recoverer interface {
	// AttemptRecovery tries to bring the device back.
	// Returns nil if recovery was successful, error otherwise.
	AttemptRecovery(ctx context.Context) error

	// GetTarget returns the current target (may change after reconnection)
	GetTarget() Target
}

// ReopenFunc reconnects to the device and returns a started engine for it.
type ReopenFunc func(ctx context.Context) (Target, error)

// DefaultRecoverer implements a tiered recovery strategy:
// 1. Keep the current target if its link is still up
// 2. Full reconnection via user-provided reopen function
type DefaultRecoverer struct {
	target      Target
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer with tiered recovery strategy.
// If reopenFunc is nil, recovery only waits for the link to come back.
func NewDefaultRecoverer(
	target Target,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		target:      target,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery implements tiered recovery:
// 1. Check whether the current link survived (BLE stacks often keep it across short sleeps)
// 2. If not and reopenFunc is provided, reconnect
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lastErr := ErrLinkDown

	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		if r.target != nil && r.target.IsConnected() {
			return nil
		}

		if r.reopenFunc != nil {
			target, err := r.reopenFunc(ctx)
			if err == nil {
				r.target = target
				return nil
			}
			lastErr = err
		}
	}

	return lastErr
}

// GetTarget returns the current target.
// This may return a different target after a successful reconnection.
func (r *DefaultRecoverer) GetTarget() Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target
}
