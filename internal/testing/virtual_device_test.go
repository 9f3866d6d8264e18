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
	"encoding/binary"
	"testing"
	"time"

	"github.com/ZaparooProject/go-venus/firmware"
	"github.com/ZaparooProject/go-venus/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otaRequest(t *testing.T, cmd byte, payload []byte) []byte {
	t.Helper()
	buf, err := frame.EncodeOTA(cmd, frame.OTAReserved, payload)
	require.NoError(t, err)
	return buf
}

func activate(t *testing.T, d *VirtualDevice) {
	t.Helper()
	req, err := frame.EncodeStandard(frame.CmdActivate, frame.ActivationMagic)
	require.NoError(t, err)
	replies := d.Handle(req)
	require.Len(t, replies, 1)
}

func sizeRequest(t *testing.T, image []byte) []byte {
	t.Helper()
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(image))) //nolint:gosec // test sizes are small
	binary.LittleEndian.PutUint32(payload[4:8], firmware.Checksum(image))
	return otaRequest(t, frame.CmdOTASize, payload)
}

func chunkRequest(t *testing.T, image []byte, offset, n int) []byte {
	t.Helper()
	payload := make([]byte, 4+n)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(offset)) //nolint:gosec // test offsets are small
	copy(payload[4:], image[offset:offset+n])
	return otaRequest(t, frame.CmdOTAChunk, payload)
}

func decodeAck(t *testing.T, replies [][]byte) frame.Ack {
	t.Helper()
	require.Len(t, replies, 1)
	ack, err := frame.DecodeOTA(replies[0])
	require.NoError(t, err)
	return ack
}

func TestVirtualDevice_GenericReply(t *testing.T) {
	t.Parallel()

	d := NewVirtualDevice()
	req, err := frame.EncodeStandard(0x04, nil)
	require.NoError(t, err)

	replies := d.Handle(req)
	require.Len(t, replies, 1)
	cmd, err := frame.DecodeCommand(replies[0])
	require.NoError(t, err)
	assert.Equal(t, byte(0x04), cmd.Cmd)
	assert.Equal(t, DeviceInfoReply, cmd.Payload)
}

func TestVirtualDevice_MeterIPReplyKeepsVariant(t *testing.T) {
	t.Parallel()

	d := NewVirtualDevice()
	req, err := frame.EncodeMeterIP(0x21, []byte{0x0B})
	require.NoError(t, err)

	replies := d.Handle(req)
	require.Len(t, replies, 1)
	cmd, err := frame.DecodeCommand(replies[0])
	require.NoError(t, err)
	assert.Equal(t, frame.VariantMeterIP, cmd.Variant)
	assert.Equal(t, MeterIPReply, cmd.Payload)
}

func TestVirtualDevice_IgnoresUnknownAndCorrupt(t *testing.T) {
	t.Parallel()

	d := NewVirtualDevice()
	unknown, err := frame.EncodeStandard(0x7E, nil)
	require.NoError(t, err)
	assert.Empty(t, d.Handle(unknown))

	corrupt, err := frame.EncodeStandard(0x03, nil)
	require.NoError(t, err)
	corrupt[len(corrupt)-1] ^= 0x01
	assert.Empty(t, d.Handle(corrupt))
	assert.Len(t, d.Received(), 1)
}

func TestVirtualDevice_OTARequiresActivation(t *testing.T) {
	t.Parallel()

	d := NewVirtualDevice()
	assert.Empty(t, d.Handle(sizeRequest(t, make([]byte, 10))))
}

func TestVirtualDevice_FullUpdate(t *testing.T) {
	t.Parallel()

	image := make([]byte, 200)
	for i := range image {
		image[i] = byte(i)
	}
	d := NewVirtualDevice()
	activate(t, d)

	size := decodeAck(t, d.Handle(sizeRequest(t, image)))
	assert.Equal(t, firmware.Checksum(image), binary.LittleEndian.Uint32(size.Payload[4:8]))

	first := decodeAck(t, d.Handle(chunkRequest(t, image, 0, 128)))
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, first.Payload)
	second := decodeAck(t, d.Handle(chunkRequest(t, image, 128, 72)))
	assert.Equal(t, uint32(128), binary.LittleEndian.Uint32(second.Payload))

	fin := decodeAck(t, d.Handle(otaRequest(t, frame.CmdOTAFinalize, nil)))
	assert.Equal(t, []byte{FinalizeOK}, fin.Payload)
	assert.True(t, d.Finalized())
	assert.Equal(t, image, d.Image())
}

func TestVirtualDevice_FinalizeDetectsBadImage(t *testing.T) {
	t.Parallel()

	image := make([]byte, 64)
	image[0] = 0xFF
	d := NewVirtualDevice()
	activate(t, d)
	decodeAck(t, d.Handle(sizeRequest(t, image)))

	// No chunks were sent, so the assembled image does not match.
	fin := decodeAck(t, d.Handle(otaRequest(t, frame.CmdOTAFinalize, nil)))
	assert.Equal(t, []byte{FinalizeBadChecksum}, fin.Payload)
	assert.False(t, d.Finalized())

	d.ForceFinalizeStatus(0x05)
	activate(t, d)
	decodeAck(t, d.Handle(sizeRequest(t, image)))
	fin = decodeAck(t, d.Handle(otaRequest(t, frame.CmdOTAFinalize, nil)))
	assert.Equal(t, []byte{0x05}, fin.Payload)
}

func TestVirtualDevice_Faults(t *testing.T) {
	t.Parallel()

	image := make([]byte, 128)
	d := NewVirtualDevice()
	activate(t, d)
	decodeAck(t, d.Handle(sizeRequest(t, image)))

	d.DropChunkAcks(0, 2)
	assert.Empty(t, d.Handle(chunkRequest(t, image, 0, 128)))
	assert.Empty(t, d.Handle(chunkRequest(t, image, 0, 128)))
	decodeAck(t, d.Handle(chunkRequest(t, image, 0, 128)))
	assert.Equal(t, 3, d.ChunkWrites(0))

	d.CorruptNextReplies(1)
	replies := d.Handle(otaRequest(t, frame.CmdOTAFinalize, nil))
	require.Len(t, replies, 1)
	_, err := frame.DecodeOTA(replies[0])
	require.ErrorIs(t, err, frame.ErrChecksumMismatch)
}

func TestVirtualDevice_ActivationControls(t *testing.T) {
	t.Parallel()

	req, err := frame.EncodeStandard(frame.CmdActivate, frame.ActivationMagic)
	require.NoError(t, err)

	d := NewVirtualDevice()
	d.SetActivationStatus(0x00)
	replies := d.Handle(req)
	require.Len(t, replies, 1)
	cmd, err := frame.DecodeCommand(replies[0])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, cmd.Payload)
	assert.Empty(t, d.Handle(sizeRequest(t, make([]byte, 8))))

	d.Ignore(frame.CmdActivate)
	assert.Empty(t, d.Handle(req))
}

func TestDeviceTransport_DeliversReplies(t *testing.T) {
	t.Parallel()

	tr := NewDeviceTransport(NewVirtualDevice())
	tr.SetLatency(5 * time.Millisecond)
	req, err := frame.EncodeStandard(0x03, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Write(context.Background(), req))

	select {
	case got := <-tr.Notifications():
		cmd, err := frame.DecodeCommand(got)
		require.NoError(t, err)
		assert.Equal(t, RuntimeInfoReply, cmd.Payload)
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
	assert.Equal(t, 1, tr.WriteCount())
}

func TestDeviceTransport_DisconnectAfter(t *testing.T) {
	t.Parallel()

	tr := NewDeviceTransport(NewVirtualDevice())
	tr.DisconnectAfter(2)
	req, err := frame.EncodeStandard(0x03, nil)
	require.NoError(t, err)

	require.NoError(t, tr.Write(context.Background(), req))
	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.Write(context.Background(), req))
	assert.False(t, tr.IsConnected())
	require.Error(t, tr.Write(context.Background(), req))
}
