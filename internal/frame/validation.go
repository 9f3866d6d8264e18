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

// IsCommandFrame reports whether buf carries the Standard/Meter-IP header
// layout. The checksum is not verified.
func IsCommandFrame(buf []byte) bool {
	return len(buf) >= MinCommandFrameLength && buf[0] == StartByte && buf[2] == ProtocolID
}

// IsActivationReply reports whether buf is a command frame for the OTA
// activation command.
func IsActivationReply(buf []byte) bool {
	return IsCommandFrame(buf) && buf[3] == CmdActivate
}

// LooksLikeOTA is the cheap classification used before DecodeOTA. A frame is
// OTA-shaped when it starts with the start byte, is long enough, and byte 2
// is not the protocol identifier. OTA acks are far shorter than 0x2300
// bytes, so their high length byte never collides with 0x23. The declared
// length must also stay within MaxStreamFrameLength.
func LooksLikeOTA(buf []byte) bool {
	if len(buf) < MinOTAFrameLength || buf[0] != StartByte || buf[2] == ProtocolID {
		return false
	}
	declared := DeclaredOTALength(buf)
	return declared >= otaOverhead && declared+otaOverhead <= MaxStreamFrameLength
}

// IsOTACommand reports whether cmd is one of the OTA transfer commands.
func IsOTACommand(cmd byte) bool {
	return cmd == CmdOTASize || cmd == CmdOTAChunk || cmd == CmdOTAFinalize
}
