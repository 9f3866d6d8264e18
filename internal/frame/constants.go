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

package frame

// Wire markers shared by every frame variant.
const (
	StartByte   = 0x73 // First byte of every frame
	ProtocolID  = 0x23 // Identifier byte in Standard and Meter-IP frames
	OTAReserved = 0x10 // Reserved byte carried by host-originated OTA frames
)

// OTA and activation command bytes.
const (
	CmdOTASize     = 0x50
	CmdOTAChunk    = 0x51
	CmdOTAFinalize = 0x52
	CmdActivate    = 0x1F
)

// ActivationMagic is the fixed payload of the OTA activation command.
var ActivationMagic = []byte{0x0A, 0x0B, 0x0C}

// ActivationOK is the first payload byte of a successful activation reply.
const ActivationOK = 0x01

// Frame size limits
const (
	// MinCommandFrameLength is start + length + id + cmd + checksum.
	MinCommandFrameLength = 5
	// MinOTAFrameLength is start + 2 length bytes + cmd + reserved + checksum.
	MinOTAFrameLength = 6

	// commandOverhead is what the Standard/Meter-IP length byte counts besides the payload.
	commandOverhead = 4
	// otaOverhead is what the OTA length field counts besides the payload.
	otaOverhead = 3

	// MaxCommandPayload keeps the one-byte length field from overflowing.
	MaxCommandPayload = 0xFF - commandOverhead
	// MaxOTAPayload keeps the 16-bit length field from overflowing.
	MaxOTAPayload = 0xFFFF - otaOverhead

	// MaxStreamFrameLength bounds frames accepted by ScanFrames. Anything
	// longer is treated as line noise and skipped.
	MaxStreamFrameLength = 4096
)

// Variant identifies which of the three wire formats a frame uses.
type Variant int

const (
	VariantStandard Variant = iota
	VariantMeterIP
	VariantOTA
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case VariantMeterIP:
		return "meter-ip"
	case VariantOTA:
		return "ota"
	default:
		return "unknown"
	}
}
