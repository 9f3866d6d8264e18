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

package uart

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	venus "github.com/ZaparooProject/go-venus"
	"github.com/ZaparooProject/go-venus/internal/frame"
	"go.bug.st/serial"
)

// DefaultBaudRate is what serial BLE bridges ship configured for.
const DefaultBaudRate = 115200

// notifyBuffer is how many frames may queue before new ones are dropped.
const notifyBuffer = 64

// drainer is implemented by serial.Port.
type drainer interface {
	Drain() error
}

// Transport implements venus.Transport over a serial link: a BLE-to-UART
// bridge or the battery's debug UART. The byte stream is cut into frames by
// their length field, so each notification carries exactly one frame.
type Transport struct {
	port     io.ReadWriteCloser
	notify   chan []byte
	portName string
	writeMu  sync.Mutex
	mu       sync.Mutex
	closed   bool
}

// New opens portName at baud (DefaultBaudRate when zero) and starts reading.
func New(portName string, baud int) (*Transport, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	// Reads block until data arrives; Close unblocks them.
	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return NewFromStream(portName, port), nil
}

// NewFromStream runs the transport over an already open stream.
func NewFromStream(name string, rw io.ReadWriteCloser) *Transport {
	t := &Transport{
		port:     rw,
		portName: name,
		notify:   make(chan []byte, notifyBuffer),
	}
	go t.readLoop()
	return t
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

func (t *Transport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.notify)
	}()

	scanner := bufio.NewScanner(t.port)
	scanner.Buffer(make([]byte, 0, 512), frame.MaxStreamFrameLength)
	scanner.Split(frame.ScanFrames)
	for scanner.Scan() {
		buf := append([]byte(nil), scanner.Bytes()...)
		select {
		case t.notify <- buf:
		default:
			venus.Debugf("UART %s: notification queue full, dropping %d bytes", t.portName, len(buf))
		}
	}
	if err := scanner.Err(); err != nil {
		venus.Debugf("UART %s: read loop ended: %v", t.portName, err)
	}
}

// Write sends one frame and waits for the port to drain.
func (t *Transport) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !t.IsConnected() {
		return venus.NewTransportClosedError("Write", t.portName)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	n, err := t.port.Write(data)
	if err != nil {
		return venus.NewTransportWriteError("Write", t.portName, err)
	} else if n != len(data) {
		return venus.NewTransportWriteError("Write", t.portName, io.ErrShortWrite)
	}
	return t.drainWithRetry("write")
}

// Notifications implements venus.Transport.
func (t *Transport) Notifications() <-chan []byte {
	return t.notify
}

// Close closes the port. The notification channel closes once the read
// loop has stopped.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true until the port is closed or the stream ends.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// Type returns the transport type
func (*Transport) Type() venus.TransportType {
	return venus.TransportSerial
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted system calls
func (t *Transport) drainWithRetry(operation string) error {
	d, ok := t.port.(drainer)
	if !ok {
		return nil
	}

	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := d.Drain()
		if err == nil {
			return nil
		}

		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt)) // 2ms, 4ms, 8ms
			continue
		}

		return venus.NewTransportWriteError(operation, t.portName, fmt.Errorf("drain: %w", err))
	}

	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}

var _ venus.Transport = (*Transport)(nil)
