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

import (
	"bytes"
	"testing"
)

// =============================================================================
// Fuzz Tests for Frame Decoding
// =============================================================================
// Notifications arrive straight from the radio, so decoding must never panic
// on arbitrary input.
//
// Run with: go test -fuzz=FuzzDecodeOTA -fuzztime=30s ./internal/frame/

// FuzzDecodeOTA checks that DecodeOTA never panics and that anything it
// accepts re-encodes to the same bytes.
func FuzzDecodeOTA(f *testing.F) {
	f.Add([]byte{0x73, 0x03, 0x00, 0x52, 0x10, 0x32})
	f.Add([]byte{0x73, 0x04, 0x00, 0x52, 0x00, 0x01, 0x24})
	f.Add([]byte{0x73, 0x00, 0x00, 0x00, 0x00, 0x00})
	f.Add([]byte{0x73, 0xFF, 0xFF, 0x51, 0x10})
	f.Add([]byte{})
	f.Add([]byte{0x73})

	f.Fuzz(func(t *testing.T, buf []byte) {
		ack, err := DecodeOTA(buf)
		if err != nil {
			return
		}
		again, encErr := EncodeOTA(ack.Cmd, ack.Reserved, ack.Payload)
		if encErr != nil {
			t.Fatalf("accepted frame does not re-encode: %v", encErr)
		}
		if !bytes.Equal(again, buf) {
			t.Errorf("re-encoded frame differs: % X != % X", again, buf)
		}
	})
}

// FuzzDecodeCommand checks Standard/Meter-IP decoding against arbitrary input.
func FuzzDecodeCommand(f *testing.F) {
	f.Add([]byte{0x73, 0x04, 0x23, 0x04, 0x50})
	f.Add([]byte{0x73, 0x05, 0x23, 0x1F, 0x01, 0x4E})
	f.Add([]byte{0x73, 0x04, 0x23})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, buf []byte) {
		cmd, err := DecodeCommand(buf)
		if err != nil {
			return
		}
		again, encErr := Encode(cmd.Variant, cmd.Cmd, cmd.Payload)
		if encErr != nil {
			t.Fatalf("accepted frame does not re-encode: %v", encErr)
		}
		if !bytes.Equal(again, buf) {
			t.Errorf("re-encoded frame differs: % X != % X", again, buf)
		}
	})
}

// FuzzScanFrames checks that the splitter never panics, always makes progress
// at EOF and only yields tokens that fit the input.
func FuzzScanFrames(f *testing.F) {
	f.Add([]byte{0x73, 0x04, 0x23, 0x04, 0x50}, true)
	f.Add([]byte{0x00, 0x73, 0x03, 0x00, 0x52, 0x10, 0x32}, false)
	f.Add([]byte{0x73, 0x73, 0x73}, true)
	f.Add([]byte{}, true)

	f.Fuzz(func(t *testing.T, data []byte, atEOF bool) {
		advance, token, err := ScanFrames(data, atEOF)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if advance < 0 || advance > len(data) {
			t.Fatalf("advance %d out of range for %d bytes", advance, len(data))
		}
		if len(token) > advance {
			t.Fatalf("token of %d bytes exceeds advance %d", len(token), advance)
		}
		if atEOF && len(data) > 0 && advance == 0 {
			t.Fatalf("no progress at EOF with %d bytes", len(data))
		}
	})
}
