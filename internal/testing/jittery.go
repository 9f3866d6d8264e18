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
	"math/rand/v2"
	"time"
)

// JitterConfig configures the behavior of JitteryStream.
type JitterConfig struct {
	MaxLatencyMs     int
	FragmentMinBytes int
	StallAfterBytes  int
	StallDuration    time.Duration
	Seed             uint64
	FragmentReads    bool
	// MTUBoundary, when positive, never lets a read cross a multiple of
	// this many bytes, like notifications cut at the negotiated ATT MTU.
	MTUBoundary int
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     5,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryStream wraps an io.ReadWriter to simulate a serial BLE bridge
// (HM-10 style modules, USB-UART adapters) that delivers frames with
// unpredictable latency and split across reads. Backend reads are buffered
// so fragmentation never loses data.
type JitteryStream struct {
	backend             io.ReadWriter
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	bytesReadSinceStall int
	stallTriggered      bool
}

// NewJitteryStream wraps backend with jitter simulation.
func NewJitteryStream(backend io.ReadWriter, config JitterConfig) *JitteryStream {
	var rng *rand.Rand
	if config.Seed != 0 {
		rng = rand.New(rand.NewPCG(config.Seed, config.Seed^0xDEADBEEF)) //nolint:gosec // Test code, not crypto
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // Test code, not crypto
	}

	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryStream{
		backend: backend,
		config:  config,
		rng:     rng,
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryStream) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns at most one fragment of the buffered backend data.
//
//nolint:gocognit,cyclop // each jitter knob adds a branch
func (j *JitteryStream) Read(buf []byte) (int, error) {
	if j.config.MaxLatencyMs > 0 {
		if delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond; delay > 0 {
			time.Sleep(delay)
		}
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if n > 0 {
			j.readBuf = append(j.readBuf, tmp[:n]...)
		}
		if len(j.readBuf) == 0 {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
	}

	toReturn := min(len(j.readBuf), len(buf))

	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.bytesReadSinceStall >= j.config.StallAfterBytes {
			j.stallTriggered = true
			if j.config.StallDuration > 0 {
				time.Sleep(j.config.StallDuration)
			}
		} else {
			toReturn = min(toReturn, j.config.StallAfterBytes-j.bytesReadSinceStall)
		}
	}

	if j.config.MTUBoundary > 0 {
		untilBoundary := j.config.MTUBoundary - j.bytesReadSinceStall%j.config.MTUBoundary
		toReturn = min(toReturn, untilBoundary)
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.rng.IntN(toReturn-j.config.FragmentMinBytes+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

// ResetStallState resets the stall tracking state.
func (j *JitteryStream) ResetStallState() {
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
}

// Close closes the backend when it is an io.Closer.
func (j *JitteryStream) Close() error {
	if c, ok := j.backend.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // Pass-through wrapper
	}
	return nil
}
