// go-venus
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-venus.
//
// go-venus is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-venus is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-venus; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package polling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"go.uber.org/zap"
)

// Target is the part of the engine the poller drives.
type Target interface {
	Send(ctx context.Context, cmd byte, payload []byte) error
	IsConnected() bool
	OTAInProgress() bool
}

var _ Target = (*venus.Engine)(nil)

// Callbacks defines optional hooks for poller events
type Callbacks struct {
	OnPollError     func(cmd byte, err error)
	OnSleepDetected func(elapsed time.Duration)
	OnRecovered     func()
}

// Metrics tracks operational metrics for the Poller
type Metrics struct {
	Polls           int64         // Queries sent
	PollErrors      int64         // Queries that failed to send
	Skipped         int64         // Ticks skipped for OTA or a down link
	Recoveries      int64         // Successful recoveries
	LastPollLatency time.Duration // Duration of the last Send
}

// Poller periodically sends query commands through the engine. Replies
// reach the engine's response handler like any other response.
type Poller struct {
	target    Target
	recoverer Recoverer
	config    *Config
	callbacks Callbacks
	logger    *zap.Logger
	ctx       context.Context
	stopChan  chan struct{}
	wg        sync.WaitGroup // Tracks polling goroutine lifecycle
	// Atomic counters for metrics
	polls           int64
	pollErrors      int64
	skipped         int64
	recoveries      int64
	lastPollLatency int64 // in nanoseconds
	// Adaptive polling state
	currentInterval     int64 // in nanoseconds
	consecutiveFailures int64
	state               int64
	// Loop-only state
	next     int
	lastPoll time.Time
	// Running state to prevent multiple goroutines
	running int64 // 0 = stopped, 1 = running
}

// Option configures a Poller
type Option func(*Poller)

// WithRecoverer reconnects when the link is down or the host slept.
func WithRecoverer(r Recoverer) Option {
	return func(p *Poller) { p.recoverer = r }
}

// WithCallbacks installs event hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(p *Poller) { p.callbacks = cb }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a poller for target.
func NewPoller(target Target, config *Config, opts ...Option) (*Poller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &Poller{
		target:          target,
		config:          config,
		logger:          zap.NewNop(),
		ctx:             context.Background(),
		stopChan:        make(chan struct{}, 1), // Buffered to prevent deadlock in Stop()
		currentInterval: config.PollInterval.Nanoseconds(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the polling goroutine. Calling Start on a running poller
// does nothing.
func (p *Poller) Start(ctx context.Context) error {
	if atomic.CompareAndSwapInt64(&p.running, 0, 1) {
		select {
		case <-p.stopChan:
		default:
		}
		p.ctx = ctx
		p.wg.Add(1)
		go p.pollLoop()
	}
	return nil
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollInterval)
	defer func() {
		ticker.Stop()
		atomic.StoreInt64(&p.state, int64(StateStopped))
		atomic.StoreInt64(&p.running, 0)
	}()

	// Immediate poll for responsive startup
	p.performPoll()

	for {
		select {
		case <-ticker.C:
			p.checkSleep()
			p.performPoll()
			p.adjustPollInterval()
			ticker.Reset(time.Duration(atomic.LoadInt64(&p.currentInterval)))
		case <-p.ctx.Done():
			return
		case <-p.stopChan:
			return
		}
	}
}

func (p *Poller) currentTarget() Target {
	if p.recoverer != nil {
		if t := p.recoverer.GetTarget(); t != nil {
			return t
		}
	}
	return p.target
}

// checkSleep runs recovery when the gap since the last poll shows the
// host was suspended.
func (p *Poller) checkSleep() {
	if p.lastPoll.IsZero() {
		return
	}
	elapsed := time.Since(p.lastPoll)
	interval := time.Duration(atomic.LoadInt64(&p.currentInterval))
	if !p.config.SleepRecovery.DetectSleep(elapsed, interval) {
		return
	}
	p.logger.Info("host sleep detected", zap.Duration("elapsed", elapsed))
	if p.callbacks.OnSleepDetected != nil {
		p.callbacks.OnSleepDetected(elapsed)
	}
	p.recover()
}

func (p *Poller) recover() bool {
	if p.recoverer == nil {
		return false
	}
	atomic.StoreInt64(&p.state, int64(StateRecovering))
	if err := p.recoverer.AttemptRecovery(p.ctx); err != nil {
		p.logger.Warn("recovery failed", zap.Error(err))
		return false
	}
	atomic.AddInt64(&p.recoveries, 1)
	if p.callbacks.OnRecovered != nil {
		p.callbacks.OnRecovered()
	}
	return true
}

// performPoll executes a single polling cycle
func (p *Poller) performPoll() {
	p.lastPoll = time.Now()
	target := p.currentTarget()

	if target.OTAInProgress() {
		atomic.AddInt64(&p.skipped, 1)
		atomic.StoreInt64(&p.state, int64(StatePausedForOTA))
		return
	}
	if !target.IsConnected() {
		atomic.AddInt64(&p.skipped, 1)
		atomic.AddInt64(&p.consecutiveFailures, 1)
		atomic.StoreInt64(&p.state, int64(StateDisconnected))
		if p.recover() {
			atomic.StoreInt64(&p.consecutiveFailures, 0)
			atomic.StoreInt64(&p.state, int64(StateActive))
		}
		return
	}

	cmd := p.config.Commands[p.next%len(p.config.Commands)]
	p.next++

	ctx, cancel := context.WithTimeout(p.ctx, p.config.SendTimeout)
	start := time.Now()
	err := target.Send(ctx, cmd, nil)
	cancel()
	atomic.StoreInt64(&p.lastPollLatency, time.Since(start).Nanoseconds())

	if errors.Is(err, venus.ErrOTAInProgress) {
		atomic.AddInt64(&p.skipped, 1)
		atomic.StoreInt64(&p.state, int64(StatePausedForOTA))
		return
	}

	atomic.AddInt64(&p.polls, 1)
	atomic.StoreInt64(&p.state, int64(StateActive))
	if err != nil {
		atomic.AddInt64(&p.pollErrors, 1)
		atomic.AddInt64(&p.consecutiveFailures, 1)
		p.logger.Debug("poll failed", zap.String("cmd", venus.CommandName(cmd)), zap.Error(err))
		if p.callbacks.OnPollError != nil {
			p.callbacks.OnPollError(cmd, err)
		}
		return
	}
	atomic.StoreInt64(&p.consecutiveFailures, 0)
}

// adjustPollInterval slows polling down while the device keeps failing
func (p *Poller) adjustPollInterval() {
	if atomic.LoadInt64(&p.consecutiveFailures) >= int64(p.config.BackoffAfter) {
		atomic.StoreInt64(&p.currentInterval, p.config.BackoffInterval.Nanoseconds())
		if PollState(atomic.LoadInt64(&p.state)) == StateActive {
			atomic.StoreInt64(&p.state, int64(StateBackoff))
		}
		return
	}
	atomic.StoreInt64(&p.currentInterval, p.config.PollInterval.Nanoseconds())
}

// Stop stops the poller and waits for the polling goroutine to exit
func (p *Poller) Stop(_ context.Context) error {
	select {
	case p.stopChan <- struct{}{}:
	default:
	}
	p.wg.Wait()
	return nil
}

// GetMetrics returns current operational metrics
func (p *Poller) GetMetrics() Metrics {
	return Metrics{
		Polls:           atomic.LoadInt64(&p.polls),
		PollErrors:      atomic.LoadInt64(&p.pollErrors),
		Skipped:         atomic.LoadInt64(&p.skipped),
		Recoveries:      atomic.LoadInt64(&p.recoveries),
		LastPollLatency: time.Duration(atomic.LoadInt64(&p.lastPollLatency)),
	}
}

// GetCurrentPollInterval returns the current adaptive polling interval
func (p *Poller) GetCurrentPollInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&p.currentInterval))
}

// State returns what the poller did on its last tick.
func (p *Poller) State() PollState {
	return PollState(atomic.LoadInt64(&p.state))
}
