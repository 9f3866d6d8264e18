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

package testing

import (
	"io"

	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// StreamDevice exposes a VirtualDevice as a byte stream, the way a serial
// bridge presents it. Written bytes are split into frames; replies are
// queued and come back out of Read in order.
type StreamDevice struct {
	device  *VirtualDevice
	pr      *io.PipeReader
	pw      *io.PipeWriter
	out     chan []byte
	pending []byte
	mu      syncutil.Mutex
	closed  bool
}

// NewStreamDevice starts the reply pump for device.
func NewStreamDevice(device *VirtualDevice) *StreamDevice {
	pr, pw := io.Pipe()
	s := &StreamDevice{
		device: device,
		pr:     pr,
		pw:     pw,
		out:    make(chan []byte, 64),
	}
	go s.pump()
	return s
}

func (s *StreamDevice) pump() {
	for b := range s.out {
		if _, err := s.pw.Write(b); err != nil {
			return
		}
	}
	_ = s.pw.Close()
}

// Write accepts host bytes. Partial frames are held until the rest arrives.
func (s *StreamDevice) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	s.pending = append(s.pending, p...)
	for {
		advance, token, err := frame.ScanFrames(s.pending, false)
		if err != nil || advance == 0 {
			break
		}
		s.pending = s.pending[advance:]
		if token == nil {
			continue
		}
		for _, reply := range s.device.Handle(append([]byte(nil), token...)) {
			select {
			case s.out <- reply:
			default:
			}
		}
	}
	return len(p), nil
}

// Read returns reply bytes. It blocks until a reply is queued or the
// device is closed.
func (s *StreamDevice) Read(p []byte) (int, error) {
	return s.pr.Read(p) //nolint:wrapcheck // pipe errors are the stream's errors
}

// Close ends the stream; pending reads return io.EOF.
func (s *StreamDevice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.out)
	return nil
}
