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

import "bytes"

// ScanFrames is a bufio.SplitFunc that cuts a byte stream into whole frames.
// Frames whose byte 2 is the protocol identifier are delimited by the
// one-byte length field; all others by the 16-bit OTA length field. Bytes
// before a start byte, and start bytes followed by an implausible length, are
// skipped within the same call so a complete frame behind line noise is
// returned without waiting for more input. A start byte whose declared length
// runs past the buffer is also skipped when a complete, checksum-valid frame
// follows it. A trailing partial frame at EOF is discarded.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	off := 0
	for off < len(data) {
		i := bytes.IndexByte(data[off:], StartByte)
		if i < 0 {
			return len(data), nil, nil
		}
		off += i
		rest := data[off:]

		if len(rest) < 3 {
			if atEOF {
				return len(data), nil, nil
			}
			return off, nil, nil
		}

		total := frameLength(rest)
		if total < 0 {
			off++
			continue
		}
		if len(rest) < total {
			if atEOF || validFrameAfter(rest) {
				off++
				continue
			}
			return off, nil, nil
		}
		return off + total, rest[:total], nil
	}
	return len(data), nil, nil
}

// validFrameAfter reports whether a complete frame with a valid checksum
// starts somewhere after data[0].
func validFrameAfter(data []byte) bool {
	for off := 1; off < len(data); off++ {
		i := bytes.IndexByte(data[off:], StartByte)
		if i < 0 {
			return false
		}
		off += i
		rest := data[off:]
		if len(rest) < 3 {
			return false
		}
		total := frameLength(rest)
		if total < 0 || len(rest) < total {
			continue
		}
		if rest[2] == ProtocolID {
			if _, err := DecodeCommand(rest[:total]); err == nil {
				return true
			}
			continue
		}
		if _, err := DecodeOTA(rest[:total]); err == nil {
			return true
		}
	}
	return false
}

// frameLength returns the full on-wire size implied by the header at data[0],
// or -1 when the header cannot start a valid frame.
func frameLength(data []byte) int {
	if data[2] == ProtocolID {
		declared := int(data[1])
		if declared < commandOverhead {
			return -1
		}
		return declared + 1
	}
	declared := DeclaredOTALength(data)
	total := declared + otaOverhead
	if declared < otaOverhead || total > MaxStreamFrameLength {
		return -1
	}
	return total
}
