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

import "fmt"

// Ack is a device acknowledgment carried in a verified OTA frame.
type Ack struct {
	Payload  []byte
	Cmd      byte
	Reserved byte
}

// EncodeOTA builds [0x73][lenLo][lenHi][cmd][reserved][payload...][xor]. The
// little-endian length counts cmd, reserved, payload and checksum; the
// checksum covers the whole frame including both length bytes.
func EncodeOTA(cmd, reserved byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxOTAPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxOTAPayload)
	}
	length := otaOverhead + len(payload)
	buf := make([]byte, MinOTAFrameLength+len(payload))
	buf[0] = StartByte
	buf[1] = byte(length)
	buf[2] = byte(length >> 8)
	buf[3] = cmd
	buf[4] = reserved
	copy(buf[5:], payload)
	buf[len(buf)-1] = CalculateChecksum(buf[:len(buf)-1])
	return buf, nil
}

// DecodeOTA verifies a complete OTA frame. Checks run in order: header
// (start byte and minimum size), declared length against received length,
// then checksum. No partial decode is attempted.
func DecodeOTA(buf []byte) (Ack, error) {
	if len(buf) < MinOTAFrameLength || buf[0] != StartByte {
		return Ack{}, &DecodeError{Kind: MalformedHeader, Variant: VariantOTA, Actual: len(buf)}
	}

	declared := DeclaredOTALength(buf)
	if declared+otaOverhead != len(buf) {
		return Ack{}, &DecodeError{
			Kind:     LengthMismatch,
			Variant:  VariantOTA,
			Declared: declared,
			Actual:   len(buf) - otaOverhead,
		}
	}

	want := CalculateChecksum(buf[:len(buf)-1])
	if got := buf[len(buf)-1]; want != got {
		return Ack{}, &DecodeError{
			Kind:    ChecksumMismatch,
			Variant: VariantOTA,
			Want:    want,
			Got:     got,
			Actual:  len(buf),
		}
	}

	payload := make([]byte, len(buf)-MinOTAFrameLength)
	copy(payload, buf[5:len(buf)-1])
	return Ack{Cmd: buf[3], Reserved: buf[4], Payload: payload}, nil
}

// DeclaredOTALength reads the 16-bit little-endian length field. It returns
// -1 when buf is too short to carry one.
func DeclaredOTALength(buf []byte) int {
	if len(buf) < 3 {
		return -1
	}
	return int(buf[1]) | int(buf[2])<<8
}
