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
	"sync/atomic"

	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/internal/syncutil"
	"github.com/ZaparooProject/go-venus/metrics"
	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Engine is the protocol engine for one connected device. It owns the
// notification router, the ack mailbox, the generic command dispatcher and
// the OTA state machine. The transport is borrowed: Close stops the engine
// but leaves the transport to its owner.
//
// Generic commands and firmware updates must not be interleaved; Send
// returns ErrOTAInProgress while an update runs.
type Engine struct {
	transport     Transport
	logger        *zap.Logger
	metrics       *metrics.Engine
	matcher       ResponseMatcher
	onResponse    ResponseHandler
	onProgress    func(Progress)
	onResult      func(OTAResult)
	mailbox       *Mailbox
	dispatcher    *dispatcher
	writer        *TransportWithRetry
	sm            *fsm.FSM
	trace         *TraceBuffer
	cancel        context.CancelFunc
	done          chan struct{}
	activation    activationWaiter
	timeouts      Timeouts
	dispatcherCfg DispatcherConfig
	chunkSize     int
	traceDepth    int
	mu            syncutil.Mutex
	otaActive     atomic.Bool
	started       bool
	closed        bool
}

// New creates an engine over transport. Call Start before sending.
func New(transport Transport, opts ...Option) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	e := &Engine{
		transport:     transport,
		matcher:       LivenessMatcher{},
		mailbox:       NewMailbox(),
		timeouts:      DefaultTimeouts(),
		dispatcherCfg: DefaultDispatcherConfig(),
		chunkSize:     firmware.DefaultChunkSize,
		traceDepth:    16,
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	e.dispatcher = newDispatcher(transport, e.dispatcherCfg, e.matcher, e.metrics, e.log)
	e.writer = NewTransportWithRetry(transport, commandWriteRetryConfig(e.dispatcherCfg))
	if e.traceDepth > 0 {
		e.trace = NewTraceBuffer(string(transport.Type()), e.traceDepth)
	}
	e.sm = newOTAStateMachine(e.enterState)
	return e, nil
}

func (e *Engine) log() *zap.Logger {
	if e.logger != nil {
		return e.logger
	}
	return Logger()
}

// Start launches the router goroutine. The engine stops when ctx ends,
// Close is called, or the transport closes its notification channel.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.started {
		return ErrAlreadyStarted
	}
	e.started = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.dispatcher.bind(runCtx)
	go e.run(runCtx, e.transport.Notifications())
	return nil
}

func (e *Engine) run(ctx context.Context, notifications <-chan []byte) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			e.teardown(ErrEngineClosed)
			return
		case buf, ok := <-notifications:
			if !ok {
				e.log().Warn("transport closed notification stream")
				e.teardown(NewTransportClosedError("Notifications", string(e.transport.Type())))
				return
			}
			e.route(buf)
		}
	}
}

// teardown fails every pending wait so a session blocked on an ack fails
// right away instead of running into its timeout.
func (e *Engine) teardown(cause error) {
	e.mailbox.Fail(cause)
	e.activation.fail(cause)
	e.dispatcher.abandon()
}

// Done is closed once the router goroutine has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Close stops the router and fails pending waits. It does not close the
// transport.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	cancel := e.cancel
	e.mu.Unlock()

	if !started {
		e.dispatcher.abandon()
		close(e.done)
		return nil
	}
	cancel()
	<-e.done
	return nil
}

func (e *Engine) running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started || e.closed {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// IsConnected reports whether the transport currently has a device.
func (e *Engine) IsConnected() bool {
	return e.transport.IsConnected()
}

// Send writes a generic command using its default variant. The reply, if
// any, is delivered to the response handler. An unanswered command is
// resent in the background until the attempt ceiling.
func (e *Engine) Send(ctx context.Context, cmd byte, payload []byte) error {
	return e.SendVariant(ctx, DefaultVariant(cmd), cmd, payload)
}

// SendVariant writes a generic command with an explicit frame variant.
// A write that still fails after the retry budget is returned as a
// *TransportError.
func (e *Engine) SendVariant(ctx context.Context, variant Variant, cmd byte, payload []byte) error {
	if !e.running() {
		return ErrEngineNotStarted
	}
	if e.otaActive.Load() {
		return ErrOTAInProgress
	}
	if variant == VariantOTA {
		return fmt.Errorf("%w: OTA frames are sent by UpdateFirmware", ErrInvalidParameter)
	}
	return e.dispatcher.send(ctx, variant, cmd, payload)
}

// Outstanding reports the generic command awaiting a reply, and how many
// times it has been sent.
func (e *Engine) Outstanding() (cmd byte, attempts int, ok bool) {
	return e.dispatcher.outstanding()
}

// OTAState returns the current firmware update state.
func (e *Engine) OTAState() OTAState {
	return OTAState(e.sm.Current())
}

// OTAInProgress reports whether UpdateFirmware is running.
func (e *Engine) OTAInProgress() bool {
	return e.otaActive.Load()
}

func (e *Engine) enterState(from, to OTAState) {
	e.metrics.SetState(to.Ordinal())
	e.log().Info("ota state change", zap.Stringer("from", from), zap.Stringer("to", to))
}
