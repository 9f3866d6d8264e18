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

// Command is a checksum-verified Standard or Meter-IP frame.
type Command struct {
	Payload []byte
	Variant Variant
	Cmd     byte
}

// EncodeStandard builds [0x73][len][0x23][cmd][payload...][xor] where the
// checksum covers every preceding byte.
func EncodeStandard(cmd byte, payload []byte) ([]byte, error) {
	buf, err := buildCommandFrame(cmd, payload)
	if err != nil {
		return nil, err
	}
	buf[len(buf)-1] = CalculateChecksum(buf[:len(buf)-1])
	return buf, nil
}

// EncodeMeterIP builds the same layout as EncodeStandard, but the checksum
// covers only [0x23, cmd, payload...]. Device firmware expects this scope.
func EncodeMeterIP(cmd byte, payload []byte) ([]byte, error) {
	buf, err := buildCommandFrame(cmd, payload)
	if err != nil {
		return nil, err
	}
	buf[len(buf)-1] = CalculateChecksum(buf[2 : len(buf)-1])
	return buf, nil
}

// Encode dispatches to EncodeStandard or EncodeMeterIP.
func Encode(variant Variant, cmd byte, payload []byte) ([]byte, error) {
	switch variant {
	case VariantStandard:
		return EncodeStandard(cmd, payload)
	case VariantMeterIP:
		return EncodeMeterIP(cmd, payload)
	case VariantOTA:
		return nil, fmt.Errorf("use EncodeOTA for %s frames", variant)
	default:
		return nil, fmt.Errorf("unknown frame variant %d", variant)
	}
}

func buildCommandFrame(cmd byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxCommandPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxCommandPayload)
	}
	buf := make([]byte, MinCommandFrameLength+len(payload))
	buf[0] = StartByte
	buf[1] = byte(commandOverhead + len(payload))
	buf[2] = ProtocolID
	buf[3] = cmd
	copy(buf[4:], payload)
	return buf, nil
}

// DecodeCommand verifies a Standard or Meter-IP frame and returns its command
// and payload. The Standard checksum scope is tried first; Variant reports the
// first scope that verifies.
func DecodeCommand(buf []byte) (Command, error) {
	if len(buf) < MinCommandFrameLength || buf[0] != StartByte || buf[2] != ProtocolID {
		return Command{}, &DecodeError{Kind: MalformedHeader, Variant: VariantStandard, Actual: len(buf)}
	}
	declared := int(buf[1]) + 1
	if declared != len(buf) {
		return Command{}, &DecodeError{
			Kind:     LengthMismatch,
			Variant:  VariantStandard,
			Declared: declared,
			Actual:   len(buf),
		}
	}

	trailer := buf[len(buf)-1]
	variant := VariantStandard
	want := CalculateChecksum(buf[:len(buf)-1])
	if want != trailer {
		if CalculateChecksum(buf[2:len(buf)-1]) != trailer {
			return Command{}, &DecodeError{
				Kind:    ChecksumMismatch,
				Variant: VariantStandard,
				Want:    want,
				Got:     trailer,
				Actual:  len(buf),
			}
		}
		variant = VariantMeterIP
	}

	payload := make([]byte, len(buf)-MinCommandFrameLength)
	copy(payload, buf[4:len(buf)-1])
	return Command{Cmd: buf[3], Payload: payload, Variant: variant}, nil
}
