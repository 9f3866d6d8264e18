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
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fastTimeouts keeps OTA tests well under a second.
func fastTimeouts() Timeouts {
	return Timeouts{
		Activation:      300 * time.Millisecond,
		SizeAck:         300 * time.Millisecond,
		ChunkAck:        80 * time.Millisecond,
		FinalizeAck:     300 * time.Millisecond,
		ChunkRetryDelay: 5 * time.Millisecond,
		ChunkAttempts:   3,
	}
}

func fastDispatcher() DispatcherConfig {
	return DispatcherConfig{
		CheckInterval:   30 * time.Millisecond,
		StaleAfter:      25 * time.Millisecond,
		MaxAttempts:     3,
		WriteRetryDelay: 5 * time.Millisecond,
	}
}

// newTestEngine builds an engine over mock with fast timings, without
// starting it.
func newTestEngine(t *testing.T, mock *MockTransport, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(zap.NewNop()),
		WithTimeouts(fastTimeouts()),
		WithDispatcherConfig(fastDispatcher()),
	}
	e, err := New(mock, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func startTestEngine(t *testing.T, mock *MockTransport, opts ...Option) *Engine {
	t.Helper()
	e := newTestEngine(t, mock, opts...)
	require.NoError(t, e.Start(context.Background()))
	return e
}

func mustStandard(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	buf, err := frame.EncodeStandard(cmd, payload)
	require.NoError(t, err)
	return buf
}

func mustMeterIP(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	buf, err := frame.EncodeMeterIP(cmd, payload)
	require.NoError(t, err)
	return buf
}

func mustOTA(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	buf, err := frame.EncodeOTA(cmd, 0x00, payload)
	require.NoError(t, err)
	return buf
}

// fakeDevice answers frames the way a battery does. Zero values give a
// cooperative device.
type fakeDevice struct {
	// dropChunkAcks maps a chunk offset to how many of its acks to swallow
	dropChunkAcks    map[int]int
	chunkWrites      map[int]int
	activationStatus byte
	finalizeStatus   byte
	silentActivation bool
	answerCommands   bool
	mu               sync.Mutex
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		dropChunkAcks:    make(map[int]int),
		chunkWrites:      make(map[int]int),
		activationStatus: frame.ActivationOK,
		finalizeStatus:   0x01,
		answerCommands:   true,
	}
}

func (d *fakeDevice) chunkAttempts(offset int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunkWrites[offset]
}

func (d *fakeDevice) respond(buf []byte) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.IsCommandFrame(buf) {
		cmd, err := frame.DecodeCommand(buf)
		if err != nil {
			return nil
		}
		if cmd.Cmd == frame.CmdActivate {
			if d.silentActivation {
				return nil
			}
			reply, _ := frame.EncodeStandard(frame.CmdActivate, []byte{d.activationStatus})
			return [][]byte{reply}
		}
		if !d.answerCommands {
			return nil
		}
		reply, _ := frame.Encode(cmd.Variant, cmd.Cmd, []byte{0xAA, 0xBB})
		return [][]byte{reply}
	}

	ack, err := frame.DecodeOTA(buf)
	if err != nil {
		return nil
	}
	var payload []byte
	switch ack.Cmd {
	case frame.CmdOTASize:
		payload = ack.Payload
	case frame.CmdOTAChunk:
		offset := int(binary.LittleEndian.Uint32(ack.Payload[0:4]))
		d.chunkWrites[offset]++
		if d.dropChunkAcks[offset] > 0 {
			d.dropChunkAcks[offset]--
			return nil
		}
		payload = ack.Payload[0:4]
	case frame.CmdOTAFinalize:
		payload = []byte{d.finalizeStatus}
	default:
		return nil
	}
	reply, _ := frame.EncodeOTA(ack.Cmd, 0x00, payload)
	return [][]byte{reply}
}
