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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/ZaparooProject/go-venus/internal/syncutil"
	"github.com/ZaparooProject/go-venus/metrics"
	"go.uber.org/zap"
)

// DispatcherConfig tunes how unanswered generic commands are resent.
type DispatcherConfig struct {
	// CheckInterval is how often the outstanding command is inspected
	CheckInterval time.Duration
	// StaleAfter is how long a command may go unanswered before a resend
	StaleAfter time.Duration
	// MaxAttempts caps the initial send plus resends, and also the attempts
	// for a single failing write
	MaxAttempts int
	// WriteRetryDelay is the wait before retrying a failed write
	WriteRetryDelay time.Duration
}

// DefaultDispatcherConfig returns the timings the device firmware expects.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		CheckInterval:   CommandCheckInterval,
		StaleAfter:      CommandStaleAfter,
		MaxAttempts:     CommandMaxAttempts,
		WriteRetryDelay: CommandWriteRetryDelay,
	}
}

func (c DispatcherConfig) validate() error {
	if c.CheckInterval <= 0 || c.StaleAfter <= 0 || c.WriteRetryDelay < 0 {
		return fmt.Errorf("%w: dispatcher durations must be positive", ErrInvalidParameter)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: dispatcher attempts must be at least 1, got %d", ErrInvalidParameter, c.MaxAttempts)
	}
	return nil
}

// ResponseMatcher decides whether an inbound notification answers the
// outstanding generic command. It is only consulted for notifications that
// are neither activation replies nor OTA acks.
type ResponseMatcher interface {
	Matches(outstanding byte, notification []byte) bool
}

// LivenessMatcher accepts any notification as the response. This is what
// the device firmware relies on: replies carry no request identifier, so a
// stray notification can satisfy an unrelated command.
type LivenessMatcher struct{}

// Matches always reports true.
func (LivenessMatcher) Matches(byte, []byte) bool { return true }

// CommandMatcher only accepts a checksum-valid command frame whose command
// byte equals the outstanding command.
type CommandMatcher struct{}

// Matches reports whether notification decodes as a reply to outstanding.
func (CommandMatcher) Matches(outstanding byte, notification []byte) bool {
	cmd, err := frame.DecodeCommand(notification)
	return err == nil && cmd.Cmd == outstanding
}

type outstandingCommand struct {
	sentAt  time.Time
	timer   *time.Timer
	frame   []byte
	attempt int
	variant Variant
	cmd     byte
}

// dispatcher sends generic commands and resends them while unanswered.
// At most one command is outstanding; a new send replaces the old one.
type dispatcher struct {
	ctx     context.Context
	writer  Transport
	matcher ResponseMatcher
	metrics *metrics.Engine
	log     func() *zap.Logger
	out     *outstandingCommand
	cfg     DispatcherConfig
	mu      syncutil.Mutex
}

func newDispatcher(
	t Transport, cfg DispatcherConfig, matcher ResponseMatcher, m *metrics.Engine, log func() *zap.Logger,
) *dispatcher {
	return &dispatcher{
		ctx:     context.Background(),
		writer:  NewTransportWithRetry(t, commandWriteRetryConfig(cfg)),
		matcher: matcher,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// bind sets the context used by background resends.
func (d *dispatcher) bind(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	d.mu.Unlock()
}

// send encodes and writes a command, then tracks it as outstanding. The
// command is marked before the write so a reply that beats the write's
// return is still matched.
func (d *dispatcher) send(ctx context.Context, variant Variant, cmd byte, payload []byte) error {
	buf, err := frame.Encode(variant, cmd, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", CommandName(cmd), err)
	}

	d.mu.Lock()
	d.stopLocked()
	oc := &outstandingCommand{
		frame:   buf,
		attempt: 1,
		variant: variant,
		cmd:     cmd,
	}
	d.out = oc
	d.mu.Unlock()

	if err := d.writer.Write(ctx, buf); err != nil {
		d.clear(oc)
		d.log().Warn("command write failed",
			zap.String("cmd", CommandName(cmd)), zap.Error(err))
		return err
	}
	d.metrics.FrameSent(variant.String())
	d.log().Debug("command sent",
		zap.String("cmd", CommandName(cmd)), zap.Stringer("variant", variant), zap.Int("bytes", len(buf)))

	d.mu.Lock()
	if d.out == oc {
		oc.sentAt = time.Now()
		d.scheduleLocked(oc, d.cfg.CheckInterval)
	}
	d.mu.Unlock()
	return nil
}

func (d *dispatcher) scheduleLocked(oc *outstandingCommand, after time.Duration) {
	oc.timer = time.AfterFunc(after, func() { d.check(oc) })
}

// check runs from the timer. It resends a stale command, or gives up once
// the attempt ceiling is reached.
func (d *dispatcher) check(oc *outstandingCommand) {
	d.mu.Lock()
	if d.out != oc {
		d.mu.Unlock()
		return
	}
	if elapsed := time.Since(oc.sentAt); elapsed < d.cfg.StaleAfter {
		d.scheduleLocked(oc, d.cfg.StaleAfter-elapsed)
		d.mu.Unlock()
		return
	}
	if oc.attempt >= d.cfg.MaxAttempts {
		d.out = nil
		d.mu.Unlock()
		d.log().Warn("command unanswered, giving up",
			zap.String("cmd", CommandName(oc.cmd)), zap.Int("attempts", oc.attempt))
		return
	}
	oc.attempt++
	attempt := oc.attempt
	ctx := d.ctx
	d.mu.Unlock()

	d.metrics.CommandResent()
	d.log().Info("resending unanswered command",
		zap.String("cmd", CommandName(oc.cmd)), zap.Int("attempt", attempt))

	if err := d.writer.Write(ctx, oc.frame); err != nil {
		d.clear(oc)
		d.log().Warn("command resend failed",
			zap.String("cmd", CommandName(oc.cmd)), zap.Error(err))
		return
	}
	d.metrics.FrameSent(oc.variant.String())

	d.mu.Lock()
	if d.out == oc {
		oc.sentAt = time.Now()
		d.scheduleLocked(oc, d.cfg.CheckInterval)
	}
	d.mu.Unlock()
}

// claim is called by the router for a notification that is not OTA
// traffic. It clears the outstanding marker when the matcher accepts the
// notification and returns the command it answered.
func (d *dispatcher) claim(notification []byte) (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	oc := d.out
	if oc == nil || !d.matcher.Matches(oc.cmd, notification) {
		return 0, false
	}
	d.stopLocked()
	return oc.cmd, true
}

// outstanding reports the tracked command and how many times it was sent.
func (d *dispatcher) outstanding() (cmd byte, attempts int, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == nil {
		return 0, 0, false
	}
	return d.out.cmd, d.out.attempt, true
}

func (d *dispatcher) clear(oc *outstandingCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.out == oc {
		d.stopLocked()
	}
}

// abandon drops any outstanding command without resending it.
func (d *dispatcher) abandon() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *dispatcher) stopLocked() {
	if d.out == nil {
		return
	}
	if d.out.timer != nil {
		d.out.timer.Stop()
	}
	d.out = nil
}
