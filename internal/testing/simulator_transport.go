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

package testing

import (
	"context"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// DeviceTransport connects a VirtualDevice to the engine. It implements
// venus.Transport: every write is handed to the device and its replies
// arrive on the notification channel, optionally after a delay.
type DeviceTransport struct {
	device    *VirtualDevice
	notify    chan []byte
	latency   time.Duration
	writes    int
	dropAfter int
	mu        syncutil.RWMutex
	connected bool
}

// NewDeviceTransport creates a connected transport backed by device.
func NewDeviceTransport(device *VirtualDevice) *DeviceTransport {
	return &DeviceTransport{
		device:    device,
		notify:    make(chan []byte, 64),
		connected: true,
	}
}

// SetLatency delays every reply by d. Replies are delivered from a
// separate goroutine, as a BLE stack would.
func (t *DeviceTransport) SetLatency(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latency = d
}

// DisconnectAfter drops the link once n frames have been written.
func (t *DeviceTransport) DisconnectAfter(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropAfter = n
}

// Write implements venus.Transport.
func (t *DeviceTransport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return venus.NewTransportClosedError("Write", string(venus.TransportMock))
	}
	t.writes++
	drop := t.dropAfter > 0 && t.writes >= t.dropAfter
	latency := t.latency
	t.mu.Unlock()

	if drop {
		t.Disconnect()
		return nil
	}

	replies := t.device.Handle(data)
	if len(replies) == 0 {
		return nil
	}
	if latency <= 0 {
		t.deliver(replies)
		return nil
	}
	go func() {
		time.Sleep(latency)
		t.deliver(replies)
	}()
	return nil
}

// Inject delivers an unsolicited notification.
func (t *DeviceTransport) Inject(data []byte) {
	t.deliver([][]byte{data})
}

// deliver drops replies once disconnected or when the channel is full.
func (t *DeviceTransport) deliver(replies [][]byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.connected {
		return
	}
	for _, r := range replies {
		select {
		case t.notify <- r:
		default:
		}
	}
}

// Notifications implements venus.Transport.
func (t *DeviceTransport) Notifications() <-chan []byte {
	return t.notify
}

// Disconnect simulates link loss.
func (t *DeviceTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	close(t.notify)
}

// Close implements venus.Transport.
func (t *DeviceTransport) Close() error {
	t.Disconnect()
	return nil
}

// IsConnected implements venus.Transport.
func (t *DeviceTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// Type implements venus.Transport.
func (*DeviceTransport) Type() venus.TransportType {
	return venus.TransportMock
}

// WriteCount returns how many frames were written.
func (t *DeviceTransport) WriteCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.writes
}

var _ venus.Transport = (*DeviceTransport)(nil)
