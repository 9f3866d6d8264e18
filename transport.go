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

package venus

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// Transport is the link to a battery or meter. Writes carry one encoded
// frame each. Inbound frames arrive on the Notifications channel, one
// notification per frame, and the channel is closed when the link drops.
//
// The engine borrows the transport and never closes it.
type Transport interface {
	// Write sends one frame to the device
	Write(ctx context.Context, data []byte) error

	// Notifications returns the inbound frame stream
	Notifications() <-chan []byte

	// Close closes the transport connection
	Close() error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportBLE represents a Bluetooth LE GATT link.
	TransportBLE TransportType = "ble"
	// TransportSerial represents a serial bridge carrying raw frames.
	TransportSerial TransportType = "serial"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport so that failed writes are retried
type TransportWithRetry struct {
	Transport
	config *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		Transport: transport,
		config:    config,
	}
}

// Write sends data, retrying transient write failures. A closed link is
// reported immediately.
func (t *TransportWithRetry) Write(ctx context.Context, data []byte) error {
	err := RetryWithConfig(ctx, t.config, func(attempt int) error {
		if !t.Transport.IsConnected() {
			return NewTransportClosedError("Write", string(t.Transport.Type()))
		}
		if err := t.Transport.Write(ctx, data); err != nil {
			Debugf("write attempt %d failed: %v", attempt, err)
			return asTransportError("Write", string(t.Transport.Type()), err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %d bytes: %w", len(data), err)
	}
	return nil
}

// asTransportError classifies a raw write error.
func asTransportError(op, port string, err error) error {
	var te *TransportError
	switch {
	case errors.As(err, &te):
		return te
	case IsFatal(err):
		return NewTransportError(op, port, err, ErrorTypePermanent)
	default:
		return NewTransportWriteError(op, port, err)
	}
}

// MockTransport is an in-memory Transport for tests. Every write is
// recorded, and an optional responder turns writes into notifications.
type MockTransport struct {
	notify    chan []byte
	responder func(frame []byte) [][]byte
	writes    [][]byte
	writeErrs []error
	mu        syncutil.RWMutex
	connected bool
}

// NewMockTransport creates a new connected mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		notify:    make(chan []byte, 64),
		connected: true,
	}
}

// Write implements Transport. Queued write errors are returned first.
func (m *MockTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return NewTransportClosedError("Write", string(TransportMock))
	}
	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		m.mu.Unlock()
		return err
	}
	m.writes = append(m.writes, append([]byte(nil), data...))
	responder := m.responder
	m.mu.Unlock()

	if responder != nil {
		for _, reply := range responder(data) {
			m.Inject(reply)
		}
	}
	return nil
}

// Notifications implements Transport
func (m *MockTransport) Notifications() <-chan []byte {
	return m.notify
}

// Close implements Transport
func (m *MockTransport) Close() error {
	m.Disconnect()
	return nil
}

// IsConnected implements Transport
func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Type implements Transport
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// Inject delivers a notification as if the device had sent it. It reports
// false once the transport is disconnected.
func (m *MockTransport) Inject(data []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return false
	}
	m.notify <- append([]byte(nil), data...)
	return true
}

// SetResponder installs a function that maps each written frame to the
// notifications the device sends back.
func (m *MockTransport) SetResponder(fn func(frame []byte) [][]byte) {
	m.mu.Lock()
	m.responder = fn
	m.mu.Unlock()
}

// QueueWriteErrors makes the next len(errs) writes fail, in order.
func (m *MockTransport) QueueWriteErrors(errs ...error) {
	m.mu.Lock()
	m.writeErrs = append(m.writeErrs, errs...)
	m.mu.Unlock()
}

// Writes returns a copy of every successfully written frame.
func (m *MockTransport) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// WriteCount returns how many frames were written.
func (m *MockTransport) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.writes)
}

// Disconnect simulates link loss: writes fail and the notification
// channel is closed.
func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return
	}
	m.connected = false
	close(m.notify)
}
