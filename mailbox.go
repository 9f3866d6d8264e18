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

package venus

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

type outcome[T any] struct {
	val T
	err error
}

// waiter is one pending wait. Exactly one value is ever sent on result.
type waiter[T any] struct {
	result chan outcome[T]
	tag    byte
}

// waitSlot holds at most one pending waiter. Whoever removes the waiter
// from the slot owns its resolution, so each wait resolves exactly once.
type waitSlot[T any] struct {
	cur *waiter[T]
	mu  syncutil.Mutex
}

// arm installs a new waiter and returns the one it displaced, if any.
func (s *waitSlot[T]) arm(tag byte) (w, prev *waiter[T]) {
	w = &waiter[T]{tag: tag, result: make(chan outcome[T], 1)}
	s.mu.Lock()
	prev = s.cur
	s.cur = w
	s.mu.Unlock()
	return w, prev
}

// take removes and returns the pending waiter.
func (s *waitSlot[T]) take() *waiter[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.cur
	s.cur = nil
	return w
}

// release removes w if it is still pending. It reports false when a
// resolver already took it.
func (s *waitSlot[T]) release(w *waiter[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != w {
		return false
	}
	s.cur = nil
	return true
}

func (s *waitSlot[T]) pending() (byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return 0, false
	}
	return s.cur.tag, true
}

// wait blocks until w resolves, the timeout fires or ctx ends.
func (s *waitSlot[T]) wait(ctx context.Context, w *waiter[T], timeout time.Duration, onTimeout func() error) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case r := <-w.result:
		return r.val, r.err
	case <-timer.C:
		if !s.release(w) {
			r := <-w.result
			return r.val, r.err
		}
		return zero, onTimeout()
	case <-ctx.Done():
		if !s.release(w) {
			r := <-w.result
			return r.val, r.err
		}
		return zero, ctx.Err()
	}
}

// Mailbox is the single-slot rendezvous between the OTA session and the
// router. At most one ack wait is pending. A delivery resolves the pending
// wait and empties the slot, so a duplicate ack finds nothing to resolve.
type Mailbox struct {
	slot waitSlot[Ack]
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// AckWait is an armed wait for one ack.
type AckWait struct {
	mb *Mailbox
	w  *waiter[Ack]
}

// Arm registers interest in an ack for expected before the request is
// written, so a fast reply cannot be missed. Arming while another wait is
// pending fails the older wait with ErrAckSuperseded.
func (m *Mailbox) Arm(expected byte) *AckWait {
	w, prev := m.slot.arm(expected)
	if prev != nil {
		prev.result <- outcome[Ack]{err: &AckError{Kind: AckSuperseded, Expected: prev.tag}}
	}
	return &AckWait{mb: m, w: w}
}

// Wait blocks until the ack arrives, timeout elapses or ctx is done. An ack
// for a different command fails the wait with an *AckError of kind
// AckUnexpectedCommand.
func (a *AckWait) Wait(ctx context.Context, timeout time.Duration) (Ack, error) {
	return a.mb.slot.wait(ctx, a.w, timeout, func() error {
		return &AckError{Kind: AckTimeout, Expected: a.w.tag, Timeout: timeout}
	})
}

// Cancel abandons the wait without resolving it.
func (a *AckWait) Cancel() {
	a.mb.slot.release(a.w)
}

// Await arms and waits in one call. The request must already be in flight
// or be sent by another goroutine; use Arm when the caller writes it.
func (m *Mailbox) Await(ctx context.Context, expected byte, timeout time.Duration) (Ack, error) {
	return m.Arm(expected).Wait(ctx, timeout)
}

// Deliver resolves the pending wait with ack. It reports false when no wait
// was pending and the ack was dropped.
func (m *Mailbox) Deliver(ack Ack) bool {
	w := m.slot.take()
	if w == nil {
		return false
	}
	if ack.Cmd != w.tag {
		w.result <- outcome[Ack]{err: &AckError{Kind: AckUnexpectedCommand, Expected: w.tag, Got: ack.Cmd}}
		return true
	}
	w.result <- outcome[Ack]{val: ack}
	return true
}

// Fail resolves the pending wait, if any, with err.
func (m *Mailbox) Fail(err error) {
	if w := m.slot.take(); w != nil {
		w.result <- outcome[Ack]{err: err}
	}
}

// Pending reports the command of the pending wait.
func (m *Mailbox) Pending() (byte, bool) {
	return m.slot.pending()
}

// activationWaiter is a single-shot wait for the activation reply. It
// resolves with the reply payload.
type activationWaiter struct {
	slot waitSlot[[]byte]
}

func (a *activationWaiter) arm() *waiter[[]byte] {
	w, prev := a.slot.arm(CmdOTAActivate)
	if prev != nil {
		prev.result <- outcome[[]byte]{err: &AckError{Kind: AckSuperseded, Expected: CmdOTAActivate}}
	}
	return w
}

func (a *activationWaiter) wait(ctx context.Context, w *waiter[[]byte], timeout time.Duration) ([]byte, error) {
	return a.slot.wait(ctx, w, timeout, func() error {
		return &AckError{Kind: AckTimeout, Expected: CmdOTAActivate, Timeout: timeout}
	})
}

// resolve delivers an activation reply. It reports false when nobody was waiting.
func (a *activationWaiter) resolve(payload []byte) bool {
	w := a.slot.take()
	if w == nil {
		return false
	}
	w.result <- outcome[[]byte]{val: payload}
	return true
}

func (a *activationWaiter) fail(err error) {
	if w := a.slot.take(); w != nil {
		w.result <- outcome[[]byte]{err: err}
	}
}

func (a *activationWaiter) pending() bool {
	_, ok := a.slot.pending()
	return ok
}
