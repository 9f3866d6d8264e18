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

// Canned generic replies. The payloads are opaque to the engine; they only
// need to be stable so tests can assert what was routed.
var (
	RuntimeInfoReply = []byte("soc=87,pv=412,out=250,temp=24")
	DeviceInfoReply  = []byte("type=HMJ-2,id=0123456789ab,mac=a1b2c3d4e5f6,ver=110")
	WiFiInfoReply    = []byte("ssid=home,rssi=-61")
	SystemDataReply  = []byte{0x01, 0x00, 0x02, 0x10}
	ErrorCodesReply  = []byte{0x00}
	BMSDataReply     = []byte{0x0C, 0xE4, 0x0C, 0xE1, 0x0C, 0xE6, 0x0C, 0xE3}
	ConfigDataReply  = []byte{0x00, 0x01}
	MeterIPReply     = []byte("192.168.1.40")
)

// DefaultReplies returns a fresh reply table keyed by command byte.
func DefaultReplies() map[byte][]byte {
	return map[byte][]byte{
		0x03: RuntimeInfoReply,
		0x04: DeviceInfoReply,
		0x08: WiFiInfoReply,
		0x0D: SystemDataReply,
		0x13: ErrorCodesReply,
		0x14: BMSDataReply,
		0x1A: ConfigDataReply,
		0x21: MeterIPReply,
	}
}
