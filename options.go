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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/metrics"
	"go.uber.org/zap"
)

// Timeouts holds the OTA ack windows and the chunk retry policy.
type Timeouts struct {
	Activation      time.Duration
	SizeAck         time.Duration
	ChunkAck        time.Duration
	FinalizeAck     time.Duration
	ChunkRetryDelay time.Duration
	ChunkAttempts   int
}

// DefaultTimeouts returns the windows the device firmware is built for.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Activation:      ActivationTimeout,
		SizeAck:         SizeAckTimeout,
		ChunkAck:        ChunkAckTimeout,
		FinalizeAck:     FinalizeAckTimeout,
		ChunkRetryDelay: ChunkRetryDelay,
		ChunkAttempts:   ChunkMaxAttempts,
	}
}

// Validate reports whether every window is usable.
func (t Timeouts) Validate() error {
	if t.Activation <= 0 || t.SizeAck <= 0 || t.ChunkAck <= 0 || t.FinalizeAck <= 0 {
		return fmt.Errorf("%w: ack timeouts must be positive", ErrInvalidParameter)
	}
	if t.ChunkRetryDelay < 0 {
		return fmt.Errorf("%w: chunk retry delay must not be negative", ErrInvalidParameter)
	}
	if t.ChunkAttempts < 1 {
		return fmt.Errorf("%w: chunk attempts must be at least 1, got %d", ErrInvalidParameter, t.ChunkAttempts)
	}
	return nil
}

// Option configures an Engine
type Option func(*Engine) error

// WithLogger sets the structured logger. Without it the package Logger is used.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			return fmt.Errorf("%w: nil logger", ErrInvalidParameter)
		}
		e.logger = logger
		return nil
	}
}

// WithMetrics records engine activity into m.
func WithMetrics(m *metrics.Engine) Option {
	return func(e *Engine) error {
		e.metrics = m
		return nil
	}
}

// WithTimeouts overrides the OTA ack windows and chunk retry policy.
func WithTimeouts(t Timeouts) Option {
	return func(e *Engine) error {
		if err := t.Validate(); err != nil {
			return err
		}
		e.timeouts = t
		return nil
	}
}

// WithDispatcherConfig overrides the generic command resend timings.
func WithDispatcherConfig(cfg DispatcherConfig) Option {
	return func(e *Engine) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		e.dispatcherCfg = cfg
		return nil
	}
}

// WithResponseMatcher replaces the default LivenessMatcher.
func WithResponseMatcher(m ResponseMatcher) Option {
	return func(e *Engine) error {
		if m == nil {
			return fmt.Errorf("%w: nil response matcher", ErrInvalidParameter)
		}
		e.matcher = m
		return nil
	}
}

// WithStrictResponses only lets a reply carrying the outstanding command
// byte clear it. Shorthand for WithResponseMatcher(CommandMatcher{}).
func WithStrictResponses() Option {
	return WithResponseMatcher(CommandMatcher{})
}

// WithResponseHandler receives decoded generic command replies.
func WithResponseHandler(h ResponseHandler) Option {
	return func(e *Engine) error {
		e.onResponse = h
		return nil
	}
}

// WithProgressCallback is called after every acknowledged chunk.
func WithProgressCallback(fn func(Progress)) Option {
	return func(e *Engine) error {
		e.onProgress = fn
		return nil
	}
}

// WithResultCallback is called once per finished OTA session.
func WithResultCallback(fn func(OTAResult)) Option {
	return func(e *Engine) error {
		e.onResult = fn
		return nil
	}
}

// WithChunkSize overrides the firmware chunk size. The device loader
// expects firmware.DefaultChunkSize; other values are for testing.
func WithChunkSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 || size > firmware.MaxChunkSize {
			return fmt.Errorf("%w: chunk size %d out of range", ErrInvalidParameter, size)
		}
		e.chunkSize = size
		return nil
	}
}

// WithTraceDepth sets how many frames are kept for failure traces.
func WithTraceDepth(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return fmt.Errorf("%w: negative trace depth", ErrInvalidParameter)
		}
		e.traceDepth = n
		return nil
	}
}
