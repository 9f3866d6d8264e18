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
	"bytes"
	"encoding/binary"

	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/ZaparooProject/go-venus/internal/syncutil"
)

// FinalizeOK and FinalizeBadChecksum are the status bytes the device loader
// answers a finalize request with.
const (
	FinalizeOK          = 0x01
	FinalizeBadChecksum = 0x00
)

// Received records one frame the virtual device accepted.
type Received struct {
	Payload []byte
	Variant frame.Variant
	Cmd     byte
}

// VirtualDevice emulates the firmware side of a battery. It answers
// generic queries from a reply table, runs the OTA loader, and assembles
// the image it receives so tests can compare it with what was sent.
//
// Faults are injected per call: dropped chunk acks, corrupted replies,
// rejected activation or finalize, and commands the device ignores.
type VirtualDevice struct {
	replies          map[byte][]byte
	silent           map[byte]bool
	dropChunkAcks    map[int]int
	chunkWrites      map[int]int
	finalizeOverride *byte
	image            []byte
	received         []Received
	declaredSum      uint32
	corruptNext      int
	activationStatus byte
	mu               syncutil.Mutex
	activated        bool
	finalized        bool
}

// NewVirtualDevice returns a cooperative device with the default reply table.
func NewVirtualDevice() *VirtualDevice {
	return &VirtualDevice{
		replies:          DefaultReplies(),
		silent:           make(map[byte]bool),
		dropChunkAcks:    make(map[int]int),
		chunkWrites:      make(map[int]int),
		activationStatus: frame.ActivationOK,
	}
}

// SetReply sets the payload returned for a generic command.
func (d *VirtualDevice) SetReply(cmd byte, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[cmd] = append([]byte(nil), payload...)
}

// Ignore makes the device stay silent for cmd. Use frame.CmdActivate to
// suppress the activation reply.
func (d *VirtualDevice) Ignore(cmd byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.silent[cmd] = true
}

// SetActivationStatus sets the status byte of the activation reply.
func (d *VirtualDevice) SetActivationStatus(status byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activationStatus = status
}

// ForceFinalizeStatus answers finalize with status regardless of the
// received image.
func (d *VirtualDevice) ForceFinalizeStatus(status byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finalizeOverride = &status
}

// DropChunkAcks swallows the next n acks for the chunk at offset.
func (d *VirtualDevice) DropChunkAcks(offset, n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropChunkAcks[offset] = n
}

// CorruptNextReplies flips the checksum of the next n replies.
func (d *VirtualDevice) CorruptNextReplies(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.corruptNext = n
}

// ChunkWrites returns how many times the chunk at offset was received.
func (d *VirtualDevice) ChunkWrites(offset int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chunkWrites[offset]
}

// Image returns a copy of the firmware assembled from received chunks.
func (d *VirtualDevice) Image() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.image...)
}

// Finalized reports whether the last update was accepted.
func (d *VirtualDevice) Finalized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finalized
}

// Received returns every frame the device decoded, in order.
func (d *VirtualDevice) Received() []Received {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Received, len(d.received))
	copy(out, d.received)
	return out
}

// Handle processes one host frame and returns the notifications the
// device sends back. Frames that fail to decode are ignored, as the real
// firmware does.
func (d *VirtualDevice) Handle(buf []byte) [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	var reply []byte
	if frame.IsCommandFrame(buf) {
		cmd, err := frame.DecodeCommand(buf)
		if err != nil {
			return nil
		}
		d.received = append(d.received, Received{Cmd: cmd.Cmd, Payload: cmd.Payload, Variant: cmd.Variant})
		reply = d.handleCommand(cmd)
	} else {
		req, err := frame.DecodeOTA(buf)
		if err != nil {
			return nil
		}
		d.received = append(d.received, Received{Cmd: req.Cmd, Payload: req.Payload, Variant: frame.VariantOTA})
		reply = d.handleOTA(req)
	}
	if reply == nil {
		return nil
	}
	if d.corruptNext > 0 {
		d.corruptNext--
		reply[len(reply)-1] ^= 0xFF
	}
	return [][]byte{reply}
}

func (d *VirtualDevice) handleCommand(cmd frame.Command) []byte {
	if d.silent[cmd.Cmd] {
		return nil
	}
	if cmd.Cmd == frame.CmdActivate {
		if !bytes.Equal(cmd.Payload, frame.ActivationMagic) {
			return nil
		}
		d.activated = d.activationStatus == frame.ActivationOK
		reply, _ := frame.EncodeStandard(frame.CmdActivate, []byte{d.activationStatus})
		return reply
	}
	payload, ok := d.replies[cmd.Cmd]
	if !ok {
		return nil
	}
	reply, _ := frame.Encode(cmd.Variant, cmd.Cmd, payload)
	return reply
}

func (d *VirtualDevice) handleOTA(req frame.Ack) []byte {
	if !d.activated || d.silent[req.Cmd] {
		return nil
	}

	var payload []byte
	switch req.Cmd {
	case frame.CmdOTASize:
		if len(req.Payload) < 8 {
			return nil
		}
		d.image = make([]byte, binary.LittleEndian.Uint32(req.Payload[0:4]))
		d.declaredSum = binary.LittleEndian.Uint32(req.Payload[4:8])
		d.finalized = false
		payload = req.Payload[:8]
	case frame.CmdOTAChunk:
		if len(req.Payload) < 4 {
			return nil
		}
		offset := int(binary.LittleEndian.Uint32(req.Payload[0:4]))
		d.chunkWrites[offset]++
		if d.dropChunkAcks[offset] > 0 {
			d.dropChunkAcks[offset]--
			return nil
		}
		if offset < len(d.image) {
			copy(d.image[offset:], req.Payload[4:])
		}
		payload = req.Payload[0:4]
	case frame.CmdOTAFinalize:
		status := byte(FinalizeBadChecksum)
		if firmware.Checksum(d.image) == d.declaredSum {
			status = FinalizeOK
		}
		if d.finalizeOverride != nil {
			status = *d.finalizeOverride
		}
		d.finalized = status == FinalizeOK
		d.activated = false
		payload = []byte{status}
	default:
		return nil
	}
	reply, _ := frame.EncodeOTA(req.Cmd, 0x00, payload)
	return reply
}
